// Package fetch pulls records and settings from the upstream log API.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tinytelemetry/logdeck/internal/ingest"
	"github.com/tinytelemetry/logdeck/internal/model"
	"github.com/tinytelemetry/logdeck/internal/settings"
)

// DefaultTimeout bounds each request to the log API.
const DefaultTimeout = 10 * time.Second

const (
	maxRetries   = 3
	maxBodyBytes = 64 << 20
)

// Client talks to the log API rooted at baseURL (for example
// http://localhost:3001/api).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// backoffUnit scales the retry delays; tests shrink it.
	backoffUnit time.Duration
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string // internal: Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithToken sends a Bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		backoffUnit: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the client as a record source.
func (c *Client) Name() string { return "api" }

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchRecords downloads the base record set. Malformed records are dropped
// and counted in the returned batch.
func (c *Client) FetchRecords(ctx context.Context) (model.Batch, error) {
	body, err := c.get(ctx, "/logs")
	if err != nil {
		return model.Batch{}, fmt.Errorf("fetch logs: %w", err)
	}
	batch, err := ingest.Decode(body)
	if err != nil {
		return model.Batch{}, fmt.Errorf("fetch logs: %w", err)
	}
	return batch, nil
}

// FetchRecord downloads a single record by id.
func (c *Client) FetchRecord(ctx context.Context, id string) (model.LogRecord, error) {
	body, err := c.get(ctx, "/logs/"+url.PathEscape(id))
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("fetch log %s: %w", id, err)
	}
	rec, err := ingest.DecodeLine(body)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("fetch log %s: %w", id, err)
	}
	return rec, nil
}

// FetchSettings downloads the server-side settings. Fields the server omits
// keep their defaults.
func (c *Client) FetchSettings(ctx context.Context) (settings.Settings, error) {
	body, err := c.get(ctx, "/settings")
	if err != nil {
		return settings.Settings{}, fmt.Errorf("fetch settings: %w", err)
	}
	out := settings.Defaults()
	if err := json.Unmarshal(body, &out); err != nil {
		return settings.Settings{}, fmt.Errorf("fetch settings: decode: %w", err)
	}
	if err := out.Validate(); err != nil {
		return settings.Settings{}, fmt.Errorf("fetch settings: %w", err)
	}
	return out, nil
}

// Health checks that the API answers.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.get(ctx, "/health"); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

// get sends a GET request and returns the body. Returns *APIError for non-2xx
// responses. Retries on 429 (with Retry-After) and 5xx (with exponential
// backoff: 1s, 2s, 4s). Max 3 retries.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	fullURL := c.baseURL + path

	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffDelay(attempt, lastErr)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		bodyStr := string(body)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyStr}

		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}

		return nil, apiErr
	}

	return nil, lastErr
}

// backoffDelay returns the wait duration before a retry attempt.
func (c *Client) backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * c.backoffUnit
		}
	}
	// Exponential backoff: 1s, 2s, 4s
	return time.Duration(1<<(attempt-1)) * c.backoffUnit
}
