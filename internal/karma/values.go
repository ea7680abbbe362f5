package karma

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidActivityType is returned for activity types outside the
// valuation table. Callers must reject the write before any mutation.
var ErrInvalidActivityType = errors.New("invalid activity type")

// activityValues is the fixed base-value table for organic activities.
var activityValues = map[string]float64{
	"post":    5,
	"comment": 3,
	"like":    1,
	"repost":  2,
	"report":  -5,
}

// BaseValueFor returns the unscaled karma worth of an activity type.
func BaseValueFor(activityType string) (float64, error) {
	value, ok := activityValues[activityType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidActivityType, activityType)
	}
	return value, nil
}

// Sentiment holds a scoring result for one piece of content, either from
// the external scorer or from the keyword fallback.
type Sentiment struct {
	Score      int     // -100..100
	Category   string  // positive, neutral, negative
	Multiplier float64 // suggested karma multiplier, 0.1..2.0
	Confidence float64 // 0..1
}

// sentimentBracket maps a score to its base karma bracket, thresholds
// evaluated in descending order.
func sentimentBracket(score int) float64 {
	switch {
	case score >= 80:
		return 100
	case score >= 50:
		return 75
	case score >= 20:
		return 50
	case score >= 0:
		return 25
	case score >= -20:
		return 10
	case score >= -50:
		return 0
	default:
		return -50
	}
}

// EngagementMultiplier returns the engagement bonus factor, capped at a
// 20% lift: 1 + min(0.2, log10(likes + comments*5 + 1) / 50).
func EngagementMultiplier(likes, comments int) float64 {
	bonus := math.Log10(float64(likes+comments*5+1)) / 50
	return 1 + math.Min(0.2, bonus)
}

// SentimentKarma converts a sentiment result plus engagement metrics into
// an integer karma value. Deterministic and monotonic in score, engagement
// and confidence; strongly negative sentiment can produce negative karma.
func SentimentKarma(s Sentiment, likes, comments int) int {
	value := sentimentBracket(s.Score)
	value *= s.Multiplier
	value *= EngagementMultiplier(likes, comments)
	value *= s.Confidence
	return int(math.Round(value))
}
