package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/nvt/karmad/internal/metrics"
	"github.com/nvt/karmad/internal/utils"
)

// ContentItem is one scraped post or reel, normalized for the pipeline
type ContentItem struct {
	Shortcode string
	Kind      string // post or reel
	Caption   string
	Likes     int
	Comments  int
	PostedAt  time.Time
}

// ContentClient talks to the third-party content scraping API
type ContentClient struct {
	httpClient *utils.HTTPClient
	limiter    *rate.Limiter
}

// NewContentClient creates a client for the scraping provider. Requests
// are rate limited client-side to stay under the provider's quota.
func NewContentClient(host, apiKey string) *ContentClient {
	return &ContentClient{
		httpClient: utils.NewHTTPClient(
			utils.WithBaseURL("https://"+host),
			utils.WithDefaultHeaders(map[string]string{
				"Content-Type":    "application/json",
				"x-rapidapi-host": host,
				"x-rapidapi-key":  apiKey,
			}),
			utils.WithTimeout(20*time.Second),
		),
		// ~1 req/s keeps a full sync under the provider's free tier
		limiter: rate.NewLimiter(rate.Limit(1), 2),
	}
}

// postsResponse mirrors the provider's post listing payload
type postsResponse struct {
	Data struct {
		Items []struct {
			Code         string `json:"code"`
			MediaName    string `json:"media_name"`
			LikeCount    int    `json:"like_count"`
			CommentCount int    `json:"comment_count"`
			TakenAt      int64  `json:"taken_at"`
			Caption      struct {
				Text string `json:"text"`
			} `json:"caption"`
		} `json:"items"`
	} `json:"data"`
}

// FetchRecentPosts retrieves a user's recent posts by handle
func (c *ContentClient) FetchRecentPosts(ctx context.Context, username string) ([]ContentItem, error) {
	return c.fetch(ctx, "/v1/posts", username)
}

// FetchReels retrieves a user's recent reels by handle
func (c *ContentClient) FetchReels(ctx context.Context, username string) ([]ContentItem, error) {
	return c.fetch(ctx, "/v1/reels", username)
}

func (c *ContentClient) fetch(ctx context.Context, path, username string) ([]ContentItem, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	response, err := c.httpClient.GetWithContext(ctx, path, map[string]string{
		"username_or_id_or_url": username,
	}, nil)
	if err != nil {
		metrics.RecordProviderRequest("content", "failed")
		return nil, fmt.Errorf("content provider request failed: %w", err)
	}
	metrics.RecordProviderRequest("content", "success")

	var payload postsResponse
	if err := response.DecodeJSON(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode content response: %w", err)
	}

	kind := "post"
	if path == "/v1/reels" {
		kind = "reel"
	}

	items := make([]ContentItem, 0, len(payload.Data.Items))
	for _, raw := range payload.Data.Items {
		items = append(items, ContentItem{
			Shortcode: raw.Code,
			Kind:      kind,
			Caption:   raw.Caption.Text,
			Likes:     raw.LikeCount,
			Comments:  raw.CommentCount,
			PostedAt:  time.Unix(raw.TakenAt, 0).UTC(),
		})
	}

	return items, nil
}
