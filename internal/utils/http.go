package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"
)

// RetryPolicy describes bounded retry with exponential backoff and jitter
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

// DefaultRetryPolicy is applied when no policy is configured
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

// Delay returns how long to wait before the given attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return delay
}

// HTTPClient is a wrapper around the standard http client with added functionality
type HTTPClient struct {
	client         *http.Client
	baseURL        string
	defaultHeaders map[string]string
	retry          RetryPolicy
}

// HTTPClientOption is a function that configures the HTTPClient
type HTTPClientOption func(*HTTPClient)

// WithTimeout sets the timeout for the HTTP client
func WithTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = timeout
	}
}

// WithBaseURL sets the base URL for the HTTP client
func WithBaseURL(baseURL string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.baseURL = baseURL
	}
}

// WithDefaultHeaders sets default headers for the HTTP client
func WithDefaultHeaders(headers map[string]string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.defaultHeaders = headers
	}
}

// WithRetryPolicy configures retry behavior
func WithRetryPolicy(policy RetryPolicy) HTTPClientOption {
	return func(c *HTTPClient) {
		c.retry = policy
	}
}

// NewHTTPClient creates a new HTTPClient with the given options
func NewHTTPClient(options ...HTTPClientOption) *HTTPClient {
	client := &HTTPClient{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
		retry: DefaultRetryPolicy,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Request represents an HTTP request
type Request struct {
	Method      string
	Path        string
	QueryParams map[string]string
	Headers     map[string]string
	Body        interface{}
	Context     context.Context
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Error represents an HTTP error
type Error struct {
	StatusCode int
	Message    string
	Response   *Response
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
}

// Do executes an HTTP request, retrying transport failures and 5xx
// responses under the configured policy, and returns the response
func (c *HTTPClient) Do(req *Request) (*Response, error) {
	if req.Context == nil {
		req.Context = context.Background()
	}

	target := req.Path
	if c.baseURL != "" {
		target = c.baseURL + target
	}

	if len(req.QueryParams) > 0 {
		values := url.Values{}
		for k, v := range req.QueryParams {
			values.Set(k, v)
		}
		target += "?" + values.Encode()
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-req.Context.Done():
				return nil, req.Context.Err()
			case <-time.After(c.retry.Delay(attempt - 1)):
			}
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		httpReq, err := http.NewRequestWithContext(req.Context, req.Method, target, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		for k, v := range c.defaultHeaders {
			httpReq.Header.Set(k, v)
		}
		for k, v := range req.Headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		response := &Response{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       respBody,
		}

		// Server errors are worth retrying; client errors are not
		if resp.StatusCode >= 500 {
			lastErr = &Error{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("request failed with status code %d", resp.StatusCode),
				Response:   response,
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return response, &Error{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("request failed with status code %d", resp.StatusCode),
				Response:   response,
			}
		}

		return response, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

// Get performs a GET request
func (c *HTTPClient) Get(path string, queryParams map[string]string, headers map[string]string) (*Response, error) {
	return c.Do(&Request{
		Method:      http.MethodGet,
		Path:        path,
		QueryParams: queryParams,
		Headers:     headers,
	})
}

// GetWithContext performs a GET request with the given context
func (c *HTTPClient) GetWithContext(ctx context.Context, path string, queryParams map[string]string, headers map[string]string) (*Response, error) {
	return c.Do(&Request{
		Method:      http.MethodGet,
		Path:        path,
		QueryParams: queryParams,
		Headers:     headers,
		Context:     ctx,
	})
}

// Post performs a POST request
func (c *HTTPClient) Post(path string, body interface{}, headers map[string]string) (*Response, error) {
	return c.Do(&Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    body,
		Headers: headers,
	})
}

// PostWithContext performs a POST request with the given context
func (c *HTTPClient) PostWithContext(ctx context.Context, path string, body interface{}, headers map[string]string) (*Response, error) {
	return c.Do(&Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    body,
		Headers: headers,
		Context: ctx,
	})
}

// DecodeJSON decodes the response body into the target
func (r *Response) DecodeJSON(target interface{}) error {
	if r.Body == nil {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Body, target)
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if the status code is between 200 and 299
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}
