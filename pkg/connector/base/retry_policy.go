package base

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy retries an operation with exponential backoff and
// jitter. The zero value never retries; NewRetryPolicy fills in the
// usual defaults.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// NewRetryPolicy builds a policy that doubles the delay between
// attempts, capped at five minutes, with 25% jitter.
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     5 * time.Minute,
		Multiplier:   2,
		Jitter:       0.25,
	}
}

// Execute retries fn on every error until it succeeds or the attempt
// budget runs out.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, nil)
}

// ExecuteWithCondition retries fn only while shouldRetry accepts the
// failure. A nil shouldRetry retries everything.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, rp.delay(attempt-1)); err != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// delay computes the backoff before retry number attempt (zero
// based), spread uniformly across the jitter window.
func (rp *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(rp.InitialDelay)
	ceil := float64(rp.MaxDelay)

	for i := 0; i < attempt; i++ {
		d *= rp.Multiplier
		if rp.MaxDelay > 0 && d >= ceil {
			d = ceil
			break
		}
	}
	if rp.Jitter > 0 {
		d += d * rp.Jitter * (2*rand.Float64() - 1)
	}
	if rp.MaxDelay > 0 && d > ceil {
		d = ceil
	}
	return time.Duration(d)
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
