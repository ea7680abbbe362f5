package karma

import "strings"

// fallbackConfidence is deliberately low: keyword matching is a much
// weaker signal than the external scorer.
const fallbackConfidence = 0.4

var positiveKeywords = []string{
	"love", "great", "amazing", "awesome", "beautiful", "happy",
	"grateful", "thank", "best", "wonderful", "inspiring", "excited",
	"proud", "blessed", "fun",
}

var negativeKeywords = []string{
	"hate", "terrible", "awful", "worst", "angry", "sad",
	"disgusting", "horrible", "annoying", "scam", "fake", "stupid",
}

// AnalyzeFallback scores content from its caption and engagement alone.
// It is used when the external scorer is unavailable and produces the
// same shape as the scorer so downstream valuation is unchanged.
func AnalyzeFallback(caption string, likes, comments int) Sentiment {
	lower := strings.ToLower(caption)

	score := 0
	for _, kw := range positiveKeywords {
		score += 10 * strings.Count(lower, kw)
	}
	for _, kw := range negativeKeywords {
		score -= 15 * strings.Count(lower, kw)
	}

	// Engagement nudges the score: well-received content is probably fine
	// even when the caption matches nothing.
	engagement := likes + comments*5
	switch {
	case engagement >= 1000:
		score += 20
	case engagement >= 100:
		score += 10
	case engagement >= 10:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < -100 {
		score = -100
	}

	category := "neutral"
	switch {
	case score >= 20:
		category = "positive"
	case score <= -20:
		category = "negative"
	}

	return Sentiment{
		Score:      score,
		Category:   category,
		Multiplier: suggestedMultiplier(score),
		Confidence: fallbackConfidence,
	}
}

// suggestedMultiplier maps a score onto the 0.1..2.0 multiplier range the
// external scorer uses: 1.0 at neutral, 2.0 at +100, 0.1 at -100.
func suggestedMultiplier(score int) float64 {
	m := 1.0 + float64(score)/100
	if m < 0.1 {
		m = 0.1
	}
	if m > 2.0 {
		m = 2.0
	}
	return m
}
