package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvt/karmad/internal/logger"
	"github.com/nvt/karmad/internal/metrics"
	"github.com/nvt/karmad/internal/queue"
	"github.com/nvt/karmad/internal/services"
)

// syncTimeout bounds one wallet's pipeline run
const syncTimeout = 10 * time.Minute

// Worker processes content syncs popped from the queue, one at a time
type Worker struct {
	id      string
	queue   *queue.Client
	syncer  *services.Syncer
	logger  zerolog.Logger
	stopped bool
}

// NewWorker creates a new worker instance
func NewWorker(id string, queueClient *queue.Client, syncer *services.Syncer, baseLogger zerolog.Logger) *Worker {
	return &Worker{
		id:     id,
		queue:  queueClient,
		syncer: syncer,
		logger: logger.WithWorker(baseLogger, id),
	}
}

// Start begins the worker processing loop
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker received shutdown signal")
			return ctx.Err()
		default:
			if w.stopped {
				w.logger.Info().Msg("Worker stopped")
				return nil
			}

			if err := w.processNext(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Failed to process sync")

				// Brief pause to avoid tight error loops
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Stop signals the worker to stop gracefully
func (w *Worker) Stop() {
	w.stopped = true
	w.logger.Info().Msg("Worker stop signal received")
}

// processNext handles the complete lifecycle of one queued sync
func (w *Worker) processNext(ctx context.Context) error {
	wallet, err := w.queue.Pop(ctx)
	if err != nil {
		return fmt.Errorf("failed to pop wallet from queue: %w", err)
	}

	// No sync pending
	if wallet == "" {
		// Brief pause when the queue is empty to avoid spinning
		select {
		case <-time.After(10 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	if err := w.queue.SetInFlight(ctx, wallet, w.id); err != nil {
		w.logger.Error().Err(err).Str("wallet", wallet).Msg("Failed to mark sync as in-flight")
		// Re-queue the wallet since we couldn't track it
		if _, requeueErr := w.queue.Enqueue(ctx, wallet, 0); requeueErr != nil {
			w.logger.Error().Err(requeueErr).Str("wallet", wallet).Msg("Failed to requeue wallet after in-flight error")
		}
		return err
	}

	walletLogger := logger.WithWallet(w.logger, wallet)
	startTime := time.Now()

	walletLogger.Info().Msg("Starting content sync")

	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	result, err := w.syncer.SyncUser(syncCtx, wallet)
	cancel()
	duration := time.Since(startTime)

	metrics.RecordContentSync(duration.Seconds())

	if removeErr := w.queue.RemoveInFlight(ctx, wallet); removeErr != nil {
		walletLogger.Error().Err(removeErr).Msg("Failed to remove sync from in-flight tracking")
	}

	if err != nil {
		walletLogger.Error().Err(err).Dur("duration", duration).Msg("Content sync failed")

		// Re-queue with lower priority (higher score) on failure
		if _, requeueErr := w.queue.Enqueue(ctx, wallet, float64(time.Now().Unix())); requeueErr != nil {
			walletLogger.Error().Err(requeueErr).Msg("Failed to requeue failed sync")
		}

		return fmt.Errorf("content sync failed: %w", err)
	}

	if err := w.queue.SetLastRun(ctx, wallet, time.Now().UTC()); err != nil {
		walletLogger.Warn().Err(err).Msg("Failed to record sync completion time")
	}

	walletLogger.Info().
		Dur("duration", duration).
		Int("scored", result.Scored).
		Float64("karma_awarded", result.KarmaAwarded).
		Msg("Content sync completed successfully")

	return nil
}
