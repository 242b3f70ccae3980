package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCallsPerMinute keeps the client under the vendor's 600 calls/min cap.
const DefaultCallsPerMinute = 590

// RateLimiter enforces a minimum spacing between upstream calls. One limiter is
// shared by every request a client makes and is safe for concurrent use.
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewRateLimiter spaces calls 60s/callsPerMinute apart with no burst.
func NewRateLimiter(callsPerMinute int) *RateLimiter {
	if callsPerMinute <= 0 {
		callsPerMinute = DefaultCallsPerMinute
	}
	interval := time.Minute / time.Duration(callsPerMinute)
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the next call may start or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return nil
}

// Interval returns the minimum spacing between calls.
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
