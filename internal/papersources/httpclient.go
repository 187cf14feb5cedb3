package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/scholaris/paper-aggregator/internal/domain"
	"github.com/scholaris/paper-aggregator/internal/observability"
)

// Default transport settings, used when the corresponding HTTPClientConfig
// field is zero.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultRequestInterval = 3 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultRateLimitDelay  = 30 * time.Second
)

// HTTPClientConfig configures the HTTP client shared by all source clients.
type HTTPClientConfig struct {
	// Timeout is the per-request timeout for HTTP operations.
	Timeout time.Duration

	// RequestInterval is the minimum spacing between requests from this
	// client. See RateLimiter.
	RequestInterval time.Duration

	// MaxRetries is the total number of attempts for a request, including
	// the first one.
	MaxRetries int

	// RetryDelay is the wait before retrying after a 5xx response or a
	// transport-level failure.
	RetryDelay time.Duration

	// RateLimitDelay is the wait before retrying after a 429 response.
	// A positive Retry-After header on the response overrides it.
	RateLimitDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string

	// Source names the client this transport serves, for metric labels.
	Source string

	// Metrics receives retry and rate-limit counters. May be nil.
	Metrics *observability.Metrics
}

// HTTPClient wraps http.Client with request pacing and status-aware retries.
// It is safe for concurrent use.
//
// Retry policy per attempt, bounded by MaxRetries total attempts:
//   - 429: wait RateLimitDelay (or the Retry-After header value) and retry.
//   - 5xx or transport error: wait RetryDelay and retry.
//   - Any other status, including 400: returned to the caller as-is, no
//     retry. Callers decide how to treat non-200 statuses.
//
// On exhaustion Do returns an error wrapping domain sentinel conditions so
// callers can attach their source name.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates an HTTP client with pacing and retries, applying
// defaults for any zero config field.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestInterval == 0 {
		cfg.RequestInterval = DefaultRequestInterval
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Scholaris-PaperAggregator/1.0"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RequestInterval),
		config:      cfg,
	}
}

// Do executes an HTTP request with pacing and retries. It waits for the
// rate limiter before each attempt and sets the User-Agent and optional API
// key headers.
//
// Request bodies are replayed across retries via Request.GetBody; callers
// sending a body must provide requests with GetBody set.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				c.config.Metrics.RecordRequestRetried(c.config.Source)
				if err := c.waitForRetry(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				if err := c.resetRequestBody(req); err != nil {
					return nil, fmt.Errorf("cannot retry request: %w", err)
				}
				continue
			}
			return nil, fmt.Errorf("retries exhausted after %d attempts: %w", c.config.MaxRetries, lastErr)
		}

		if !c.shouldRetry(resp.StatusCode) {
			// Success or a status the caller handles (400, 404, ...).
			return resp, nil
		}

		delay := c.config.RetryDelay
		rateLimited := resp.StatusCode == http.StatusTooManyRequests
		if rateLimited {
			delay = c.rateLimitDelay(resp)
		}
		lastStatus := resp.StatusCode

		// Drain and close so the connection can be reused for the retry.
		if resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if attempt < c.config.MaxRetries {
			c.config.Metrics.RecordRequestRetried(c.config.Source)
			if rateLimited {
				c.config.Metrics.RecordRateLimitWait(c.config.Source)
			}
			if err := c.waitForRetry(req.Context(), delay); err != nil {
				return nil, err
			}
			if err := c.resetRequestBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
			continue
		}

		if rateLimited {
			return nil, fmt.Errorf("retries exhausted after %d attempts, last status: %d: %w",
				c.config.MaxRetries, lastStatus, domain.NewRateLimitError(c.config.Source, delay))
		}
		return nil, fmt.Errorf("retries exhausted after %d attempts, last status: %d: %w",
			c.config.MaxRetries, lastStatus, domain.ErrServiceUnavailable)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

// shouldRetry returns true for statuses the transport retries itself:
// 429 and 5xx. Everything else, 400 included, goes back to the caller.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// rateLimitDelay determines how long to wait after a 429. A positive
// Retry-After header value (seconds or HTTP date) overrides the configured
// RateLimitDelay.
func (c *HTTPClient) rateLimitDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RateLimitDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RateLimitDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RateLimitDelay
}

// waitForRetry waits for the specified duration, respecting context
// cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody restores the request body for a retry if the request
// carries one.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
