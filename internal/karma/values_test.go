package karma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseValueFor(t *testing.T) {
	tests := []struct {
		activityType string
		want         float64
	}{
		{"post", 5},
		{"comment", 3},
		{"like", 1},
		{"repost", 2},
		{"report", -5},
	}

	for _, tt := range tests {
		t.Run(tt.activityType, func(t *testing.T) {
			got, err := BaseValueFor(tt.activityType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := BaseValueFor("poke")
		assert.ErrorIs(t, err, ErrInvalidActivityType)
	})

	t.Run("ledger-only types are not valued", func(t *testing.T) {
		// stake/unstake/redeem entries carry their own values and must not
		// pass through the activity table.
		for _, typ := range []string{"stake", "unstake", "redeem"} {
			_, err := BaseValueFor(typ)
			assert.ErrorIs(t, err, ErrInvalidActivityType)
		}
	})
}

func TestSentimentKarma(t *testing.T) {
	t.Run("high score with engagement", func(t *testing.T) {
		s := Sentiment{Score: 85, Multiplier: 1.2, Confidence: 0.9}
		// bracket 100 * 1.2 = 120, engagement 1+log10(1001)/50 = 1.060,
		// * 0.9 = 114.48
		got := SentimentKarma(s, 600, 80)
		assert.Equal(t, 114, got)
	})

	t.Run("no engagement leaves base untouched", func(t *testing.T) {
		s := Sentiment{Score: 50, Multiplier: 1.0, Confidence: 1.0}
		// bracket 75, engagement 1+log10(1)/50 = 1.0 exactly
		assert.Equal(t, 75, SentimentKarma(s, 0, 0))
	})

	t.Run("strongly negative sentiment goes negative", func(t *testing.T) {
		s := Sentiment{Score: -90, Multiplier: 1.0, Confidence: 1.0}
		got := SentimentKarma(s, 0, 0)
		assert.Less(t, got, 0)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		s := Sentiment{Score: 42, Multiplier: 1.3, Confidence: 0.7}
		first := SentimentKarma(s, 123, 45)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, SentimentKarma(s, 123, 45))
		}
	})
}

// TestSentimentKarmaMonotonicInScore checks that a higher score never
// produces less karma, all else equal.
func TestSentimentKarmaMonotonicInScore(t *testing.T) {
	prev := SentimentKarma(Sentiment{Score: -100, Multiplier: 1.0, Confidence: 1.0}, 100, 10)
	for score := -99; score <= 100; score++ {
		got := SentimentKarma(Sentiment{Score: score, Multiplier: 1.0, Confidence: 1.0}, 100, 10)
		if got < prev {
			t.Fatalf("karma decreased from %d to %d at score %d", prev, got, score)
		}
		prev = got
	}
}

func TestEngagementMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, EngagementMultiplier(0, 0))

	// Cap at 1.2 regardless of engagement volume
	assert.Equal(t, 1.2, EngagementMultiplier(100000000000, 0))

	// Comments weigh 5x likes
	assert.Equal(t, EngagementMultiplier(50, 0), EngagementMultiplier(0, 10))
}
