package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is the throttling contract shared by HTTPClient and the
// connector base.
type RateLimiter interface {
	// Allow consumes a token if one is available.
	Allow() bool
	// Wait blocks until a token is available or ctx is done.
	Wait(ctx context.Context) error
	// GetStats returns admission counters for reporting.
	GetStats() RateLimiterStats
}

// NewRateLimiter returns a token bucket limiter admitting rate
// requests per second with the given burst.
func NewRateLimiter(rate int, burst int) RateLimiter {
	return NewTokenBucketRateLimiter(float64(rate), burst)
}

// RateLimiterStats counts admitted and rejected requests.
type RateLimiterStats struct {
	Rate            float64 `json:"rate"`
	Burst           int     `json:"burst"`
	AllowedRequests int64   `json:"allowed_requests"`
	BlockedRequests int64   `json:"blocked_requests"`
}

// TokenBucketRateLimiter refills tokens continuously at a fixed rate
// up to a burst ceiling; each request consumes one token.
type TokenBucketRateLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    int
	tokens   float64
	refilled time.Time

	allowed int64
	blocked int64
}

// NewTokenBucketRateLimiter creates a limiter with a full bucket, so
// the first burst requests pass without waiting.
func NewTokenBucketRateLimiter(rate float64, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		rate:     rate,
		burst:    burst,
		tokens:   float64(burst),
		refilled: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucketRateLimiter) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens < 1 {
		tb.blocked++
		return false
	}
	tb.tokens--
	tb.allowed++
	return true
}

// Wait blocks until a token is available or ctx is done. A cancelled
// wait counts as a blocked request.
func (tb *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	for {
		ok, retry := tb.take()
		if ok {
			return nil
		}

		timer := time.NewTimer(retry)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			tb.mu.Lock()
			tb.blocked++
			tb.mu.Unlock()
			return ctx.Err()
		}
	}
}

// take consumes a token when one is available. Otherwise it returns
// how long until the bucket holds a full token again.
func (tb *TokenBucketRateLimiter) take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		tb.allowed++
		return true, 0
	}
	return false, time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
}

// refill credits tokens for the time elapsed since the last refill,
// capped at the burst size. Called with tb.mu held.
func (tb *TokenBucketRateLimiter) refill() {
	now := time.Now()
	tb.tokens += now.Sub(tb.refilled).Seconds() * tb.rate
	if limit := float64(tb.burst); tb.tokens > limit {
		tb.tokens = limit
	}
	tb.refilled = now
}

// GetStats returns admission counters for reporting.
func (tb *TokenBucketRateLimiter) GetStats() RateLimiterStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return RateLimiterStats{
		Rate:            tb.rate,
		Burst:           tb.burst,
		AllowedRequests: tb.allowed,
		BlockedRequests: tb.blocked,
	}
}
