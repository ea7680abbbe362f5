// Package ledger owns all writes to the karma balance and the activity
// ledger. Every karma-affecting call site funnels through Apply, which
// performs the balance update and the ledger append in one transaction
// with the user row locked.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nvt/karmad/internal/karma"
	"github.com/nvt/karmad/internal/metrics"
	"github.com/nvt/karmad/internal/models"
)

var (
	// ErrUserNotFound is returned when no user exists for a wallet address
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEvent is returned when an event's dedup key has already
	// been recorded; the balance is left untouched
	ErrDuplicateEvent = errors.New("event already recorded")

	// ErrInsufficientKarma is returned when a redemption exceeds the balance
	ErrInsufficientKarma = errors.New("insufficient karma balance")
)

// Service coordinates user state and ledger writes
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a ledger service
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Event describes one karma-affecting write
type Event struct {
	Type      string
	BaseValue float64
	Metadata  string

	// DedupKey, when set, makes the write idempotent: a second event with
	// the same key fails with ErrDuplicateEvent and changes nothing.
	DedupKey string

	// PinMultiplier forces a 1.0 multiplier. Stake, unstake and redeem
	// entries use it so the staking tier never scales bookkeeping rows.
	PinMultiplier bool
}

// Apply records an event against a user's balance. The balance update and
// the ledger append commit or roll back together.
func (s *Service) Apply(ctx context.Context, walletAddress string, ev Event) (*models.ActivityRecord, *models.User, error) {
	var record models.ActivityRecord
	var user models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("wallet_address = ? AND is_active = ?", walletAddress, true).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		multiplier := user.Multiplier
		if ev.PinMultiplier {
			multiplier = 1.0
		}
		finalKarma := ev.BaseValue * multiplier
		now := time.Now().UTC()

		record = models.ActivityRecord{
			UserID:     user.ID,
			Type:       ev.Type,
			Value:      ev.BaseValue,
			Multiplier: multiplier,
			FinalKarma: finalKarma,
			Metadata:   ev.Metadata,
			Timestamp:  now,
		}
		if ev.DedupKey != "" {
			key := ev.DedupKey
			record.DedupKey = &key
		}

		// Insert the ledger row first so a duplicate dedup key aborts the
		// transaction before the balance moves.
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEvent
			}
			return fmt.Errorf("failed to append ledger record: %w", err)
		}

		user.KarmaPoints += finalKarma
		user.LastActivity = now
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"karma_points":  user.KarmaPoints,
				"last_activity": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		return nil
	})

	if err != nil {
		status := "failed"
		if errors.Is(err, ErrDuplicateEvent) {
			status = "duplicate"
		}
		metrics.RecordActivity(ev.Type, status)
		return nil, nil, err
	}

	metrics.RecordActivity(ev.Type, "success")
	s.logger.Debug().
		Str("wallet", walletAddress).
		Str("type", ev.Type).
		Float64("final_karma", record.FinalKarma).
		Float64("balance", user.KarmaPoints).
		Msg("Ledger record applied")

	return &record, &user, nil
}

// RecordActivity values an organic activity and applies it. Unknown types
// are rejected before any state is touched.
func (s *Service) RecordActivity(ctx context.Context, walletAddress, activityType, metadata string) (*models.ActivityRecord, *models.User, error) {
	baseValue, err := karma.BaseValueFor(activityType)
	if err != nil {
		return nil, nil, err
	}

	record, user, err := s.Apply(ctx, walletAddress, Event{
		Type:      activityType,
		BaseValue: baseValue,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.RecordKarmaAwarded("activity", record.FinalKarma)
	return record, user, nil
}

// AwardContentKarma applies a sentiment-derived karma value for a piece of
// scraped content. The content shortcode is the idempotency key: re-scoring
// the same content fails with ErrDuplicateEvent.
func (s *Service) AwardContentKarma(ctx context.Context, walletAddress string, points int, shortcode, metadata string) (*models.ActivityRecord, *models.User, error) {
	record, user, err := s.Apply(ctx, walletAddress, Event{
		Type:      models.ActivityPost,
		BaseValue: float64(points),
		Metadata:  metadata,
		DedupKey:  "ig:" + shortcode,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.RecordKarmaAwarded("sentiment", record.FinalKarma)
	return record, user, nil
}

// Redeem converts karma points into tokens at the given rate, deducting
// the karma atomically. Returns the ledger record, the updated user and
// the token amount redeemed.
func (s *Service) Redeem(ctx context.Context, walletAddress string, karmaAmount, redeemRate float64) (*models.ActivityRecord, *models.User, float64, error) {
	if karmaAmount <= 0 {
		return nil, nil, 0, fmt.Errorf("redeem amount must be positive")
	}

	var record models.ActivityRecord
	var user models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("wallet_address = ? AND is_active = ?", walletAddress, true).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user: %w", err)
		}

		if user.KarmaPoints < karmaAmount {
			return ErrInsufficientKarma
		}

		now := time.Now().UTC()
		record = models.ActivityRecord{
			UserID:     user.ID,
			Type:       models.ActivityRedeem,
			Value:      -karmaAmount,
			Multiplier: 1.0,
			FinalKarma: -karmaAmount,
			Metadata:   fmt.Sprintf(`{"redeemRate":%g}`, redeemRate),
			Timestamp:  now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to append redeem record: %w", err)
		}

		user.KarmaPoints -= karmaAmount
		user.LastActivity = now
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"karma_points":  user.KarmaPoints,
				"last_activity": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		return nil
	})

	if err != nil {
		metrics.RecordActivity(models.ActivityRedeem, "failed")
		return nil, nil, 0, err
	}

	tokens := karmaAmount / redeemRate
	metrics.RecordActivity(models.ActivityRedeem, "success")
	metrics.RecordKarmaAwarded("redeem", -karmaAmount)
	s.logger.Info().
		Str("wallet", walletAddress).
		Float64("karma", karmaAmount).
		Float64("tokens", tokens).
		Msg("Karma redeemed")

	return &record, &user, tokens, nil
}
