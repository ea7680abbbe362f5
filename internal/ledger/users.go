package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"gorm.io/gorm"

	"github.com/nvt/karmad/internal/models"
)

// ErrWalletExists is returned when registering an already-known wallet
var ErrWalletExists = errors.New("wallet address already registered")

// ErrInvalidWalletAddress is returned for addresses that are not valid
// base58 public keys
var ErrInvalidWalletAddress = errors.New("invalid wallet address")

// ValidateWalletAddress checks that an address parses as a base58 public key
func ValidateWalletAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidWalletAddress, address)
	}
	return nil
}

// Register creates a new user for the given wallet address
func (s *Service) Register(ctx context.Context, walletAddress, email, username string) (*models.User, error) {
	if err := ValidateWalletAddress(walletAddress); err != nil {
		return nil, err
	}

	user := models.User{
		WalletAddress: walletAddress,
		Email:         email,
		Username:      username,
		Multiplier:    1.0,
		IsActive:      true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().Str("wallet", walletAddress).Msg("User registered")
	return &user, nil
}

// GetUser fetches a user by wallet address
func (s *Service) GetUser(ctx context.Context, walletAddress string) (*models.User, error) {
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
	return &user, nil
}

// Deactivate soft-deletes a user. Ledger history is kept.
func (s *Service) Deactivate(ctx context.Context, walletAddress string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("wallet_address = ?", walletAddress).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Leaderboard returns up to limit active users ordered by karma points
// descending. Ties break by user id so ordering is stable within a call.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 10
	}

	var users []models.User
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("karma_points DESC, id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return users, nil
}

// TypeStat aggregates ledger entries of one activity type
type TypeStat struct {
	Type       string  `json:"type"`
	Count      int64   `json:"count"`
	TotalKarma float64 `json:"totalKarma"`
}

// Stats summarizes a user's ledger
type Stats struct {
	WalletAddress string     `json:"walletAddress"`
	KarmaPoints   float64    `json:"karmaPoints"`
	StakedAmount  float64    `json:"stakedAmount"`
	Multiplier    float64    `json:"multiplier"`
	TotalEvents   int64      `json:"totalEvents"`
	ByType        []TypeStat `json:"byType"`
}

// UserStats aggregates a user's activity ledger by type
func (s *Service) UserStats(ctx context.Context, walletAddress string) (*Stats, error) {
	user, err := s.GetUser(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	var byType []TypeStat
	err = s.db.WithContext(ctx).Model(&models.ActivityRecord{}).
		Select("type, COUNT(*) AS count, SUM(final_karma) AS total_karma").
		Where("user_id = ?", user.ID).
		Group("type").
		Order("type ASC").
		Scan(&byType).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate activity stats: %w", err)
	}

	stats := &Stats{
		WalletAddress: user.WalletAddress,
		KarmaPoints:   user.KarmaPoints,
		StakedAmount:  user.StakedAmount,
		Multiplier:    user.Multiplier,
		ByType:        byType,
	}
	for _, ts := range byType {
		stats.TotalEvents += ts.Count
	}
	return stats, nil
}
