// Package staking owns stake/unstake transitions. The user's multiplier
// is a derived field: it is recomputed from the post-transition staked
// amount inside the same transaction and written nowhere else.
package staking

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

	// ErrInvalidAmount is returned for non-positive stake amounts
	ErrInvalidAmount = errors.New("stake amount must be positive")

	// ErrStakingRecordNotFound is returned when the staking record is
	// missing, closed, or owned by another user
	ErrStakingRecordNotFound = errors.New("active staking record not found")
)

// Service manages staking state transitions
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a staking service
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "staking").Logger(),
	}
}

// Stake locks tokens for a user, raising the staked amount and recomputing
// the multiplier. Staked tokens are an external asset; they are never
// funded from the karma balance.
func (s *Service) Stake(ctx context.Context, walletAddress string, amount float64) (*models.StakingRecord, *models.User, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var record models.StakingRecord
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

		now := time.Now().UTC()
		user.StakedAmount += amount
		user.Multiplier = karma.MultiplierFor(user.StakedAmount)

		record = models.StakingRecord{
			UserID:     user.ID,
			Amount:     amount,
			Multiplier: user.Multiplier,
			StartDate:  now,
			IsActive:   true,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create staking record: %w", err)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"staked_amount": user.StakedAmount,
				"multiplier":    user.Multiplier,
				"last_activity": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update staked amount: %w", err)
		}

		// Ledger entry for the audit trail; stake entries carry no karma
		ledgerEntry := models.ActivityRecord{
			UserID:     user.ID,
			Type:       models.ActivityStake,
			Value:      0,
			Multiplier: 1.0,
			FinalKarma: 0,
			Metadata:   fmt.Sprintf(`{"amount":%g}`, amount),
			Timestamp:  now,
		}
		if err := tx.Create(&ledgerEntry).Error; err != nil {
			return fmt.Errorf("failed to append stake ledger entry: %w", err)
		}

		return nil
	})

	if err != nil {
		metrics.RecordActivity(models.ActivityStake, "failed")
		return nil, nil, err
	}

	metrics.RecordActivity(models.ActivityStake, "success")
	s.logger.Info().
		Str("wallet", walletAddress).
		Float64("amount", amount).
		Float64("staked_total", user.StakedAmount).
		Float64("multiplier", user.Multiplier).
		Msg("Stake recorded")

	return &record, &user, nil
}

// Unstake closes an active staking record, lowering the staked amount and
// recomputing the multiplier.
func (s *Service) Unstake(ctx context.Context, walletAddress string, stakingRecordID uint) (*models.StakingRecord, *models.User, error) {
	var record models.StakingRecord
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

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ? AND is_active = ?", stakingRecordID, user.ID, true).
			First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStakingRecordNotFound
			}
			return fmt.Errorf("failed to load staking record: %w", err)
		}

		now := time.Now().UTC()
		user.StakedAmount -= record.Amount
		if user.StakedAmount < 0 {
			// Records and the running total are kept in one transaction,
			// so this indicates corrupt data rather than a user error.
			return fmt.Errorf("staked amount underflow for wallet %s", walletAddress)
		}
		user.Multiplier = karma.MultiplierFor(user.StakedAmount)

		record.IsActive = false
		record.EndDate = &now
		if err := tx.Model(&models.StakingRecord{}).Where("id = ?", record.ID).
			Updates(map[string]interface{}{
				"is_active": false,
				"end_date":  now,
			}).Error; err != nil {
			return fmt.Errorf("failed to close staking record: %w", err)
		}

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"staked_amount": user.StakedAmount,
				"multiplier":    user.Multiplier,
				"last_activity": now,
			}).Error; err != nil {
			return fmt.Errorf("failed to update staked amount: %w", err)
		}

		ledgerEntry := models.ActivityRecord{
			UserID:     user.ID,
			Type:       models.ActivityUnstake,
			Value:      0,
			Multiplier: 1.0,
			FinalKarma: 0,
			Metadata:   fmt.Sprintf(`{"amount":%g,"stakingRecordId":%d}`, record.Amount, record.ID),
			Timestamp:  now,
		}
		if err := tx.Create(&ledgerEntry).Error; err != nil {
			return fmt.Errorf("failed to append unstake ledger entry: %w", err)
		}

		return nil
	})

	if err != nil {
		metrics.RecordActivity(models.ActivityUnstake, "failed")
		return nil, nil, err
	}

	metrics.RecordActivity(models.ActivityUnstake, "success")
	s.logger.Info().
		Str("wallet", walletAddress).
		Uint("staking_record", record.ID).
		Float64("staked_total", user.StakedAmount).
		Float64("multiplier", user.Multiplier).
		Msg("Unstake recorded")

	return &record, &user, nil
}

// ActiveRecords lists a user's open staking records
func (s *Service) ActiveRecords(ctx context.Context, walletAddress string) ([]models.StakingRecord, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("wallet_address = ?", walletAddress).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var records []models.StakingRecord
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", user.ID, true).
		Order("start_date ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load staking records: %w", err)
	}
	return records, nil
}
