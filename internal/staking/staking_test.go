package staking

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nvt/karmad/internal/database"
	"github.com/nvt/karmad/internal/ledger"
	"github.com/nvt/karmad/internal/models"
)

const testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestServices(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	db := openTestDB(t)
	return NewService(db, zerolog.Nop()), ledger.NewService(db, zerolog.Nop())
}

func TestStake(t *testing.T) {
	svc, lsvc := newTestServices(t)
	ctx := context.Background()

	_, err := lsvc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	t.Run("stake into silver tier", func(t *testing.T) {
		record, user, err := svc.Stake(ctx, testWallet, 120)
		require.NoError(t, err)
		assert.Equal(t, 120.0, user.StakedAmount)
		assert.Equal(t, 1.5, user.Multiplier)
		assert.Equal(t, 1.5, record.Multiplier)
		assert.True(t, record.IsActive)
		assert.Nil(t, record.EndDate)
	})

	t.Run("stacking stakes crosses gold tier", func(t *testing.T) {
		_, user, err := svc.Stake(ctx, testWallet, 400)
		require.NoError(t, err)
		assert.Equal(t, 520.0, user.StakedAmount)
		assert.Equal(t, 2.0, user.Multiplier)
	})

	t.Run("non-positive amounts rejected", func(t *testing.T) {
		_, _, err := svc.Stake(ctx, testWallet, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, _, err = svc.Stake(ctx, testWallet, -10)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		_, _, err := svc.Stake(ctx, "Vote111111111111111111111111111111111111111", 50)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

// TestStakeUnstakeRoundTrip verifies that staking then unstaking the same
// amount returns stakedAmount and multiplier to their pre-stake values.
func TestStakeUnstakeRoundTrip(t *testing.T) {
	svc, lsvc := newTestServices(t)
	ctx := context.Background()

	_, err := lsvc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	record, user, err := svc.Stake(ctx, testWallet, 120)
	require.NoError(t, err)
	assert.Equal(t, 1.5, user.Multiplier)

	// Record a comment at the boosted multiplier
	activity, _, err := lsvc.RecordActivity(ctx, testWallet, models.ActivityComment, "")
	require.NoError(t, err)
	assert.Equal(t, 4.5, activity.FinalKarma)

	closed, user, err := svc.Unstake(ctx, testWallet, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, user.StakedAmount)
	assert.Equal(t, 1.0, user.Multiplier)
	assert.False(t, closed.IsActive)
	assert.NotNil(t, closed.EndDate)

	// Back at the base tier
	activity, _, err = lsvc.RecordActivity(ctx, testWallet, models.ActivityLike, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, activity.FinalKarma)
}

func TestUnstake(t *testing.T) {
	svc, lsvc := newTestServices(t)
	ctx := context.Background()

	_, err := lsvc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	record, _, err := svc.Stake(ctx, testWallet, 200)
	require.NoError(t, err)

	t.Run("closing twice fails", func(t *testing.T) {
		_, _, err := svc.Unstake(ctx, testWallet, record.ID)
		require.NoError(t, err)

		_, _, err = svc.Unstake(ctx, testWallet, record.ID)
		assert.ErrorIs(t, err, ErrStakingRecordNotFound)
	})

	t.Run("unknown record id", func(t *testing.T) {
		_, _, err := svc.Unstake(ctx, testWallet, 9999)
		assert.ErrorIs(t, err, ErrStakingRecordNotFound)
	})
}

// TestUnstakeOwnership checks a user cannot close another user's record.
func TestUnstakeOwnership(t *testing.T) {
	svc, lsvc := newTestServices(t)
	ctx := context.Background()

	other := "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	_, err := lsvc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)
	_, err = lsvc.Register(ctx, other, "", "")
	require.NoError(t, err)

	record, _, err := svc.Stake(ctx, testWallet, 100)
	require.NoError(t, err)

	_, _, err = svc.Unstake(ctx, other, record.ID)
	assert.ErrorIs(t, err, ErrStakingRecordNotFound)
}

// TestActiveRecordsSumMatchesStakedAmount verifies the invariant that the
// sum of active record amounts equals the user's staked amount.
func TestActiveRecordsSumMatchesStakedAmount(t *testing.T) {
	svc, lsvc := newTestServices(t)
	ctx := context.Background()

	_, err := lsvc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	var firstID uint
	for i, amount := range []float64{50, 75, 125} {
		record, _, err := svc.Stake(ctx, testWallet, amount)
		require.NoError(t, err)
		if i == 0 {
			firstID = record.ID
		}
	}

	_, user, err := svc.Unstake(ctx, testWallet, firstID)
	require.NoError(t, err)

	records, err := svc.ActiveRecords(ctx, testWallet)
	require.NoError(t, err)

	sum := 0.0
	for _, r := range records {
		sum += r.Amount
	}
	assert.Equal(t, user.StakedAmount, sum)
	assert.Equal(t, 200.0, sum)
}
