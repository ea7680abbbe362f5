package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nvt/karmad/internal/karma"
	"github.com/nvt/karmad/internal/ledger"
	"github.com/nvt/karmad/internal/logger"
	"github.com/nvt/karmad/internal/models"
	"github.com/nvt/karmad/internal/utils"
)

// ContentProvider fetches a user's recent content by handle
type ContentProvider interface {
	FetchRecentPosts(ctx context.Context, username string) ([]ContentItem, error)
	FetchReels(ctx context.Context, username string) ([]ContentItem, error)
}

// Syncer runs the content-to-karma pipeline for one wallet at a time:
// fetch content, score sentiment, award karma through the ledger.
type Syncer struct {
	db       *gorm.DB
	ledger   *ledger.Service
	provider ContentProvider
	scorer   SentimentScorer
	logger   zerolog.Logger
}

// NewSyncer creates a content sync pipeline
func NewSyncer(db *gorm.DB, ledgerSvc *ledger.Service, provider ContentProvider, scorer SentimentScorer, baseLogger zerolog.Logger) *Syncer {
	return &Syncer{
		db:       db,
		ledger:   ledgerSvc,
		provider: provider,
		scorer:   scorer,
		logger:   baseLogger.With().Str("component", "content_sync").Logger(),
	}
}

// SyncResult summarizes one pipeline run
type SyncResult struct {
	Fetched      int     `json:"fetched"`
	Scored       int     `json:"scored"`
	Skipped      int     `json:"skipped"`
	Failed       int     `json:"failed"`
	KarmaAwarded float64 `json:"karmaAwarded"`
}

// SyncUser fetches and scores all new content for a wallet. Per-item
// failures abort the item, not the batch.
func (s *Syncer) SyncUser(ctx context.Context, walletAddress string) (*SyncResult, error) {
	user, err := s.ledger.GetUser(ctx, walletAddress)
	if err != nil {
		return nil, err
	}
	if user.Username == "" {
		return nil, fmt.Errorf("user %s has no content handle configured", walletAddress)
	}

	walletLogger := logger.WithWallet(s.logger, walletAddress)

	posts, err := s.provider.FetchRecentPosts(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}

	reels, err := s.provider.FetchReels(ctx, user.Username)
	if err != nil {
		// Posts alone still make a useful run
		walletLogger.Warn().Err(err).Msg("Failed to fetch reels, continuing with posts only")
	}

	items := utils.Filter(append(posts, reels...), func(item ContentItem) bool {
		return item.Shortcode != ""
	})

	result := &SyncResult{Fetched: len(items)}
	for _, item := range items {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		awarded, err := s.processItem(ctx, user, item, walletLogger)
		switch {
		case err != nil:
			result.Failed++
			contentLogger := logger.WithContent(walletLogger, item.Shortcode)
			contentLogger.Warn().Err(err).Msg("Failed to process content item, continuing")
		case awarded == nil:
			result.Skipped++
		default:
			result.Scored++
			result.KarmaAwarded += awarded.FinalKarma
		}
	}

	walletLogger.Info().
		Int("fetched", result.Fetched).
		Int("scored", result.Scored).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Float64("karma_awarded", result.KarmaAwarded).
		Msg("Content sync completed")

	return result, nil
}

// processItem scores one content item and awards its karma. Returns nil
// without error when the item was already awarded.
func (s *Syncer) processItem(ctx context.Context, user *models.User, item ContentItem, walletLogger zerolog.Logger) (*models.ActivityRecord, error) {
	content := models.ScrapedContent{
		UserID:    user.ID,
		Shortcode: item.Shortcode,
		Kind:      item.Kind,
		Caption:   item.Caption,
		Likes:     item.Likes,
		Comments:  item.Comments,
		PostedAt:  item.PostedAt,
	}
	err := s.db.WithContext(ctx).
		Where("shortcode = ?", item.Shortcode).
		FirstOrCreate(&content).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert content: %w", err)
	}
	if content.KarmaAwarded {
		return nil, nil
	}

	sentiment, err := s.scorer.Score(ctx, item)
	if err != nil {
		// Degrade to the keyword heuristic rather than dropping the item
		walletLogger.Warn().Err(err).Str("shortcode", item.Shortcode).Msg("Sentiment scorer unavailable, using fallback")
		sentiment = karma.AnalyzeFallback(item.Caption, item.Likes, item.Comments)
	}

	points := karma.SentimentKarma(sentiment, item.Likes, item.Comments)

	metadata, _ := json.Marshal(map[string]interface{}{
		"shortcode": item.Shortcode,
		"kind":      item.Kind,
		"score":     sentiment.Score,
		"category":  sentiment.Category,
	})

	record, _, err := s.ledger.AwardContentKarma(ctx, user.WalletAddress, points, item.Shortcode, string(metadata))
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateEvent) {
			// Awarded in an earlier run that crashed before marking the
			// content row; reconcile the flag and move on.
			s.markAwarded(ctx, &content, sentiment, points)
			return nil, nil
		}
		return nil, err
	}

	s.markAwarded(ctx, &content, sentiment, points)
	return record, nil
}

func (s *Syncer) markAwarded(ctx context.Context, content *models.ScrapedContent, sentiment karma.Sentiment, points int) {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(content).Updates(map[string]interface{}{
		"sentiment_score":      sentiment.Score,
		"sentiment_category":   sentiment.Category,
		"sentiment_confidence": sentiment.Confidence,
		"karma_points":         points,
		"karma_awarded":        true,
		"analyzed_at":          now,
	}).Error
	if err != nil {
		s.logger.Error().Err(err).Str("shortcode", content.Shortcode).Msg("Failed to mark content as awarded")
	}
}
