package papersources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces requests so that at least one interval elapses between
// consecutive dispatches from the same client. It wraps a token bucket with
// burst 1, so the first request passes immediately and each subsequent
// request waits out the remainder of the interval. It is safe for concurrent
// use because the underlying rate.Limiter is goroutine-safe.
//
// Each client holds its own RateLimiter; pacing is per client instance, not
// shared across sources.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a rate limiter that allows one request per interval.
// A non-positive interval disables throttling.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until a request is allowed or the context is canceled.
// It returns an error if the context is canceled or its deadline passes
// before a slot frees up.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed without waiting, consuming
// one token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
