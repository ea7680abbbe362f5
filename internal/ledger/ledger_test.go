package ledger

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
	"github.com/nvt/karmad/internal/karma"
	"github.com/nvt/karmad/internal/models"
)

const (
	testWallet  = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	testWallet2 = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	testWallet3 = "Vote111111111111111111111111111111111111111"
)

// openTestDB opens a named in-memory database so the gorm connection pool
// shares one schema within a test.
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

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(openTestDB(t), zerolog.Nop())
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, testWallet, "a@example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, 0.0, user.KarmaPoints)
	assert.Equal(t, 1.0, user.Multiplier)
	assert.True(t, user.IsActive)

	t.Run("duplicate wallet rejected", func(t *testing.T) {
		_, err := svc.Register(ctx, testWallet, "b@example.com", "bob")
		assert.ErrorIs(t, err, ErrWalletExists)
	})

	t.Run("invalid address rejected", func(t *testing.T) {
		_, err := svc.Register(ctx, "not-a-wallet", "", "")
		assert.ErrorIs(t, err, ErrInvalidWalletAddress)
	})
}

func TestRecordActivity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	t.Run("post at base multiplier", func(t *testing.T) {
		record, user, err := svc.RecordActivity(ctx, testWallet, models.ActivityPost, "")
		require.NoError(t, err)
		assert.Equal(t, 5.0, record.Value)
		assert.Equal(t, 1.0, record.Multiplier)
		assert.Equal(t, 5.0, record.FinalKarma)
		assert.Equal(t, 5.0, user.KarmaPoints)
	})

	t.Run("multiplier snapshot at event time", func(t *testing.T) {
		// Simulate a silver-tier stake directly; the staking package owns
		// this transition in production.
		err := svc.db.Model(&models.User{}).
			Where("wallet_address = ?", testWallet).
			Updates(map[string]interface{}{"staked_amount": 150.0, "multiplier": karma.MultiplierFor(150)}).Error
		require.NoError(t, err)

		record, user, err := svc.RecordActivity(ctx, testWallet, models.ActivityComment, "")
		require.NoError(t, err)
		assert.Equal(t, 3.0, record.Value)
		assert.Equal(t, 1.5, record.Multiplier)
		assert.Equal(t, 4.5, record.FinalKarma)
		assert.Equal(t, 9.5, user.KarmaPoints)
	})

	t.Run("report deducts karma", func(t *testing.T) {
		record, _, err := svc.RecordActivity(ctx, testWallet, models.ActivityReport, "")
		require.NoError(t, err)
		assert.Equal(t, -7.5, record.FinalKarma) // -5 * 1.5
	})

	t.Run("unknown type mutates nothing", func(t *testing.T) {
		before, err := svc.GetUser(ctx, testWallet)
		require.NoError(t, err)

		var countBefore int64
		svc.db.Model(&models.ActivityRecord{}).Count(&countBefore)

		_, _, err = svc.RecordActivity(ctx, testWallet, "poke", "")
		assert.ErrorIs(t, err, karma.ErrInvalidActivityType)

		after, err := svc.GetUser(ctx, testWallet)
		require.NoError(t, err)
		assert.Equal(t, before.KarmaPoints, after.KarmaPoints)

		var countAfter int64
		svc.db.Model(&models.ActivityRecord{}).Count(&countAfter)
		assert.Equal(t, countBefore, countAfter)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		_, _, err := svc.RecordActivity(ctx, testWallet2, models.ActivityLike, "")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestAwardContentKarmaIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	record, user, err := svc.AwardContentKarma(ctx, testWallet, 75, "Cxyz123", "")
	require.NoError(t, err)
	assert.Equal(t, 75.0, record.FinalKarma)
	assert.Equal(t, 75.0, user.KarmaPoints)

	// Re-scoring the same shortcode must not award again
	_, _, err = svc.AwardContentKarma(ctx, testWallet, 75, "Cxyz123", "")
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	after, err := svc.GetUser(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 75.0, after.KarmaPoints)
}

func TestRedeem(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	// Seed a balance
	_, _, err = svc.AwardContentKarma(ctx, testWallet, 500, "Cseed1", "")
	require.NoError(t, err)

	t.Run("successful redemption", func(t *testing.T) {
		record, user, tokens, err := svc.Redeem(ctx, testWallet, 200, 100)
		require.NoError(t, err)
		assert.Equal(t, -200.0, record.FinalKarma)
		assert.Equal(t, 1.0, record.Multiplier)
		assert.Equal(t, 300.0, user.KarmaPoints)
		assert.Equal(t, 2.0, tokens)
	})

	t.Run("insufficient balance mutates nothing", func(t *testing.T) {
		_, _, _, err := svc.Redeem(ctx, testWallet, 10000, 100)
		assert.ErrorIs(t, err, ErrInsufficientKarma)

		user, err := svc.GetUser(ctx, testWallet)
		require.NoError(t, err)
		assert.Equal(t, 300.0, user.KarmaPoints)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		_, _, _, err := svc.Redeem(ctx, testWallet, 0, 100)
		assert.Error(t, err)
	})
}

func TestLeaderboard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	wallets := []string{testWallet, testWallet2, testWallet3}
	points := []int{50, 200, 50}
	for i, w := range wallets {
		_, err := svc.Register(ctx, w, "", "")
		require.NoError(t, err)
		_, _, err = svc.AwardContentKarma(ctx, w, points[i], fmt.Sprintf("Clead%d", i), "")
		require.NoError(t, err)
	}

	board, err := svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 3)

	assert.Equal(t, testWallet2, board[0].WalletAddress)
	// 50-point tie breaks stably by registration order
	assert.Equal(t, testWallet, board[1].WalletAddress)
	assert.Equal(t, testWallet3, board[2].WalletAddress)

	t.Run("limit respected", func(t *testing.T) {
		board, err := svc.Leaderboard(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, board, 2)
	})

	t.Run("deactivated users excluded", func(t *testing.T) {
		require.NoError(t, svc.Deactivate(ctx, testWallet2))
		board, err := svc.Leaderboard(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, board, 2)
		assert.Equal(t, testWallet, board[0].WalletAddress)
	})
}

func TestUserStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, testWallet, "", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err = svc.RecordActivity(ctx, testWallet, models.ActivityLike, "")
		require.NoError(t, err)
	}
	_, _, err = svc.RecordActivity(ctx, testWallet, models.ActivityPost, "")
	require.NoError(t, err)

	stats, err := svc.UserStats(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalEvents)
	assert.Equal(t, 8.0, stats.KarmaPoints)

	byType := map[string]TypeStat{}
	for _, ts := range stats.ByType {
		byType[ts.Type] = ts
	}
	assert.Equal(t, int64(3), byType[models.ActivityLike].Count)
	assert.Equal(t, 3.0, byType[models.ActivityLike].TotalKarma)
	assert.Equal(t, int64(1), byType[models.ActivityPost].Count)
	assert.Equal(t, 5.0, byType[models.ActivityPost].TotalKarma)

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := svc.UserStats(ctx, testWallet2)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}
