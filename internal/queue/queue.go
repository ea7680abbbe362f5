// Package queue manages the redis-backed content sync queue. Each entry
// is a wallet address; dedup on enqueue plus in-flight tracking keep at
// most one sync pending or running per user.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	queueKey    = "sync_queue"
	inFlightKey = "sync_inflight"
	lastRunKey  = "sync_last_run"
)

// Client wraps Redis operations for sync queue management
type Client struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewClient creates a new Redis queue client
func NewClient(redisURL string, logger zerolog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().Msg("Connected to Redis successfully")

	return &Client{
		client: client,
		logger: logger.With().Str("component", "queue").Logger(),
	}, nil
}

// Enqueue adds a wallet to the sync queue with the given priority (lower
// pops first). Returns false without enqueueing when the wallet is
// already queued or a sync for it is in flight.
func (c *Client) Enqueue(ctx context.Context, wallet string, priority float64) (bool, error) {
	inFlight, err := c.client.HExists(ctx, inFlightKey, wallet).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check in-flight state: %w", err)
	}
	if inFlight {
		c.logger.Debug().Str("wallet", wallet).Msg("Sync already in flight, not enqueueing")
		return false, nil
	}

	added, err := c.client.ZAddNX(ctx, queueKey, redis.Z{
		Score:  priority,
		Member: wallet,
	}).Result()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue wallet: %w", err)
	}

	if added > 0 {
		c.logger.Debug().
			Str("wallet", wallet).
			Float64("priority", priority).
			Msg("Enqueued wallet for sync")
	}
	return added > 0, nil
}

// Pop removes and returns the wallet with the lowest score (highest
// priority). Returns an empty string when the queue is empty.
func (c *Client) Pop(ctx context.Context) (string, error) {
	result, err := c.client.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("failed to pop wallet from queue: %w", err)
	}

	if len(result) == 0 {
		return "", nil
	}

	wallet := result[0].Member.(string)
	c.logger.Debug().Str("wallet", wallet).Msg("Popped wallet from queue")
	return wallet, nil
}

// SetInFlight marks a wallet's sync as running on a worker
func (c *Client) SetInFlight(ctx context.Context, wallet, worker string) error {
	value := fmt.Sprintf("%s,%d", worker, time.Now().Unix())
	if err := c.client.HSet(ctx, inFlightKey, wallet, value).Err(); err != nil {
		return fmt.Errorf("failed to set sync in-flight: %w", err)
	}

	c.logger.Debug().
		Str("wallet", wallet).
		Str("worker", worker).
		Msg("Marked sync as in-flight")

	return nil
}

// RemoveInFlight removes a wallet from in-flight tracking
func (c *Client) RemoveInFlight(ctx context.Context, wallet string) error {
	if err := c.client.HDel(ctx, inFlightKey, wallet).Err(); err != nil {
		return fmt.Errorf("failed to remove sync from in-flight: %w", err)
	}

	c.logger.Debug().Str("wallet", wallet).Msg("Removed sync from in-flight")
	return nil
}

// SetLastRun records when a wallet's sync last completed
func (c *Client) SetLastRun(ctx context.Context, wallet string, at time.Time) error {
	if err := c.client.HSet(ctx, lastRunKey, wallet, at.Unix()).Err(); err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}
	return nil
}

// GetLastRun returns when a wallet's sync last completed, or the zero
// time when it never ran
func (c *Client) GetLastRun(ctx context.Context, wallet string) (time.Time, error) {
	result, err := c.client.HGet(ctx, lastRunKey, wallet).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get last run: %w", err)
	}

	unix, err := strconv.ParseInt(result, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last run timestamp: %w", err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

// Length returns the number of wallets in the queue
func (c *Client) Length(ctx context.Context) (int64, error) {
	length, err := c.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

// InFlight returns all wallets with a sync currently running
func (c *Client) InFlight(ctx context.Context) (map[string]string, error) {
	result, err := c.client.HGetAll(ctx, inFlightKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-flight syncs: %w", err)
	}
	return result, nil
}

// RequeueStuck moves syncs that have been inflight longer than the
// timeout back onto the queue, e.g. after a worker crash
func (c *Client) RequeueStuck(ctx context.Context, timeout time.Duration) error {
	inFlight, err := c.InFlight(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-timeout).Unix()
	requeued := 0

	for wallet, value := range inFlight {
		worker, startTime, ok := parseInFlightValue(value)
		if !ok {
			c.logger.Warn().Str("wallet", wallet).Str("value", value).Msg("Invalid in-flight value format")
			continue
		}

		if startTime >= cutoff {
			continue
		}

		if err := c.RemoveInFlight(ctx, wallet); err != nil {
			c.logger.Error().Err(err).Str("wallet", wallet).Msg("Failed to clear stuck sync")
			continue
		}
		if _, err := c.Enqueue(ctx, wallet, 0); err != nil {
			c.logger.Error().Err(err).Str("wallet", wallet).Msg("Failed to requeue stuck sync")
			continue
		}

		requeued++
		c.logger.Info().
			Str("wallet", wallet).
			Str("worker", worker).
			Int64("stuck_minutes", (time.Now().Unix()-startTime)/60).
			Msg("Requeued stuck sync")
	}

	if requeued > 0 {
		c.logger.Info().Int("count", requeued).Msg("Requeued stuck syncs")
	}

	return nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// parseInFlightValue splits the "worker,timestamp" in-flight format
func parseInFlightValue(value string) (worker string, startTime int64, ok bool) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	startTime, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], startTime, true
}
