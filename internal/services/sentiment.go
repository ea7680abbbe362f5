package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nvt/karmad/internal/karma"
	"github.com/nvt/karmad/internal/metrics"
	"github.com/nvt/karmad/internal/utils"
)

// SentimentScorer produces a sentiment result for one content item
type SentimentScorer interface {
	Score(ctx context.Context, item ContentItem) (karma.Sentiment, error)
}

// LLMScorer scores content via an OpenAI-compatible chat completion API
type LLMScorer struct {
	httpClient *utils.HTTPClient
	model      string
}

// NewLLMScorer creates a scorer for the given API key and model
func NewLLMScorer(apiKey, model string) *LLMScorer {
	return &LLMScorer{
		httpClient: utils.NewHTTPClient(
			utils.WithBaseURL("https://api.openai.com"),
			utils.WithDefaultHeaders(map[string]string{
				"Content-Type":  "application/json",
				"Authorization": "Bearer " + apiKey,
			}),
			utils.WithTimeout(30*time.Second),
			utils.WithRetryPolicy(utils.RetryPolicy{
				MaxAttempts: 2,
				BaseDelay:   time.Second,
				Jitter:      500 * time.Millisecond,
			}),
		),
		model: model,
	}
}

const scoringPrompt = `Rate the sentiment of this social media post. Respond with JSON only:
{"score": <-100 to 100>, "category": "<positive|neutral|negative>", "suggestedKarmaMultiplier": <0.1 to 2.0>, "confidence": <0 to 1>}

Caption: %q
Likes: %d, Comments: %d`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type scoringResult struct {
	Score                    int     `json:"score"`
	Category                 string  `json:"category"`
	SuggestedKarmaMultiplier float64 `json:"suggestedKarmaMultiplier"`
	Confidence               float64 `json:"confidence"`
}

// Score sends the content metadata to the model and parses its verdict
func (s *LLMScorer) Score(ctx context.Context, item ContentItem) (karma.Sentiment, error) {
	request := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(scoringPrompt, item.Caption, item.Likes, item.Comments)},
		},
	}

	response, err := s.httpClient.PostWithContext(ctx, "/v1/chat/completions", request, nil)
	if err != nil {
		metrics.RecordProviderRequest("sentiment", "failed")
		return karma.Sentiment{}, fmt.Errorf("sentiment request failed: %w", err)
	}
	metrics.RecordProviderRequest("sentiment", "success")

	var chat chatResponse
	if err := response.DecodeJSON(&chat); err != nil {
		return karma.Sentiment{}, fmt.Errorf("failed to decode sentiment response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return karma.Sentiment{}, fmt.Errorf("sentiment response contained no choices")
	}

	result, err := parseScoringResult(chat.Choices[0].Message.Content)
	if err != nil {
		return karma.Sentiment{}, err
	}

	return karma.Sentiment{
		Score:      clampInt(result.Score, -100, 100),
		Category:   result.Category,
		Multiplier: clampFloat(result.SuggestedKarmaMultiplier, 0.1, 2.0),
		Confidence: clampFloat(result.Confidence, 0, 1),
	}, nil
}

// parseScoringResult extracts the JSON verdict from the model output,
// tolerating surrounding prose or markdown fences.
func parseScoringResult(content string) (scoringResult, error) {
	var result scoringResult

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return result, fmt.Errorf("no JSON object in sentiment response")
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return result, fmt.Errorf("failed to parse sentiment verdict: %w", err)
	}
	return result, nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// FallbackScorer scores content with the keyword heuristic only. It is
// used directly in tests and as the last resort when the LLM is down.
type FallbackScorer struct{}

// Score applies the keyword analyzer; it never fails
func (FallbackScorer) Score(_ context.Context, item ContentItem) (karma.Sentiment, error) {
	return karma.AnalyzeFallback(item.Caption, item.Likes, item.Comments), nil
}
