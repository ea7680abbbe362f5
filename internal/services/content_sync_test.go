package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nvt/karmad/internal/database"
	"github.com/nvt/karmad/internal/karma"
	"github.com/nvt/karmad/internal/ledger"
	"github.com/nvt/karmad/internal/models"
)

const testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

type fakeProvider struct {
	posts    []ContentItem
	reels    []ContentItem
	postsErr error
	reelsErr error
}

func (f *fakeProvider) FetchRecentPosts(_ context.Context, _ string) ([]ContentItem, error) {
	return f.posts, f.postsErr
}

func (f *fakeProvider) FetchReels(_ context.Context, _ string) ([]ContentItem, error) {
	return f.reels, f.reelsErr
}

type fakeScorer struct {
	sentiment karma.Sentiment
	err       error
	calls     int
}

func (f *fakeScorer) Score(_ context.Context, _ ContentItem) (karma.Sentiment, error) {
	f.calls++
	return f.sentiment, f.err
}

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

func newTestSyncer(t *testing.T, provider ContentProvider, scorer SentimentScorer) (*Syncer, *ledger.Service) {
	t.Helper()
	db := openTestDB(t)
	ledgerSvc := ledger.NewService(db, zerolog.Nop())
	return NewSyncer(db, ledgerSvc, provider, scorer, zerolog.Nop()), ledgerSvc
}

func registerSyncUser(t *testing.T, ledgerSvc *ledger.Service) {
	t.Helper()
	_, err := ledgerSvc.Register(context.Background(), testWallet, "", "somehandle")
	require.NoError(t, err)
}

func item(shortcode string, likes, comments int) ContentItem {
	return ContentItem{
		Shortcode: shortcode,
		Kind:      "post",
		Caption:   "an amazing day",
		Likes:     likes,
		Comments:  comments,
		PostedAt:  time.Now().UTC(),
	}
}

func TestSyncUser(t *testing.T) {
	provider := &fakeProvider{posts: []ContentItem{item("Cabc1", 100, 10), item("Cabc2", 5, 0)}}
	scorer := &fakeScorer{sentiment: karma.Sentiment{Score: 85, Category: "positive", Multiplier: 1.0, Confidence: 1.0}}
	syncer, ledgerSvc := newTestSyncer(t, provider, scorer)
	registerSyncUser(t, ledgerSvc)
	ctx := context.Background()

	result, err := syncer.SyncUser(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Scored)
	assert.Equal(t, 0, result.Failed)
	assert.Greater(t, result.KarmaAwarded, 0.0)

	user, err := ledgerSvc.GetUser(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, result.KarmaAwarded, user.KarmaPoints)

	t.Run("second run awards nothing", func(t *testing.T) {
		result, err := syncer.SyncUser(ctx, testWallet)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Scored)
		assert.Equal(t, 2, result.Skipped)

		after, err := ledgerSvc.GetUser(ctx, testWallet)
		require.NoError(t, err)
		assert.Equal(t, user.KarmaPoints, after.KarmaPoints)
	})
}

func TestSyncUserScorerFallback(t *testing.T) {
	provider := &fakeProvider{posts: []ContentItem{item("Cdef1", 1000, 50)}}
	scorer := &fakeScorer{err: errors.New("upstream down")}
	syncer, ledgerSvc := newTestSyncer(t, provider, scorer)
	registerSyncUser(t, ledgerSvc)

	result, err := syncer.SyncUser(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scored)
	assert.Equal(t, 0, result.Failed)

	// The fallback's low confidence must flow into the stored result
	var content models.ScrapedContent
	require.NoError(t, syncer.db.Where("shortcode = ?", "Cdef1").First(&content).Error)
	assert.True(t, content.KarmaAwarded)
	assert.Equal(t, 0.4, content.SentimentConfidence)
}

func TestSyncUserReelsFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{
		posts:    []ContentItem{item("Cghi1", 10, 1)},
		reelsErr: errors.New("reels endpoint down"),
	}
	scorer := &fakeScorer{sentiment: karma.Sentiment{Score: 50, Multiplier: 1.0, Confidence: 1.0}}
	syncer, ledgerSvc := newTestSyncer(t, provider, scorer)
	registerSyncUser(t, ledgerSvc)

	result, err := syncer.SyncUser(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scored)
}

func TestSyncUserPostsFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{postsErr: errors.New("provider down")}
	syncer, ledgerSvc := newTestSyncer(t, provider, &fakeScorer{})
	registerSyncUser(t, ledgerSvc)

	_, err := syncer.SyncUser(context.Background(), testWallet)
	assert.Error(t, err)
}

func TestSyncUserSkipsEmptyShortcodes(t *testing.T) {
	provider := &fakeProvider{posts: []ContentItem{{Kind: "post"}, item("Cjkl1", 1, 0)}}
	scorer := &fakeScorer{sentiment: karma.Sentiment{Score: 0, Multiplier: 1.0, Confidence: 1.0}}
	syncer, ledgerSvc := newTestSyncer(t, provider, scorer)
	registerSyncUser(t, ledgerSvc)

	result, err := syncer.SyncUser(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
}

func TestSyncUserWithoutHandle(t *testing.T) {
	syncer, ledgerSvc := newTestSyncer(t, &fakeProvider{}, &fakeScorer{})
	_, err := ledgerSvc.Register(context.Background(), testWallet, "", "")
	require.NoError(t, err)

	_, err = syncer.SyncUser(context.Background(), testWallet)
	assert.Error(t, err)
}

func TestSyncUserUnknownWallet(t *testing.T) {
	syncer, _ := newTestSyncer(t, &fakeProvider{}, &fakeScorer{})

	_, err := syncer.SyncUser(context.Background(), testWallet)
	assert.ErrorIs(t, err, ledger.ErrUserNotFound)
}
