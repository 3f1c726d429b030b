package base

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/pool"
	"go.uber.org/zap"
)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 5 * time.Minute

// permanentPatterns lists message fragments that mark an error as not worth
// retrying regardless of its type.
var permanentPatterns = []string{
	"invalid credentials",
	"unauthorized",
	"forbidden",
	"not found",
	"bad request",
	"invalid configuration",
	"unsupported",
	"schema mismatch",
	"data corruption",
	"disk full",
	"out of memory",
}

// transientPatterns lists message fragments that mark an error as retryable.
var transientPatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"throttle",
	"deadlock",
	"lock timeout",
	"network",
	"i/o error",
}

// errorKindLabels maps typed errors to the stats bucket they land in. Order
// matters: the first matching type wins.
var errorKindLabels = []struct {
	kind  errors.ErrorType
	label string
}{
	{errors.ErrorTypeConnection, "connection"},
	{errors.ErrorTypeTimeout, "timeout"},
	{errors.ErrorTypeAuthentication, "authentication"},
	{errors.ErrorTypeRateLimit, "rate_limit"},
	{errors.ErrorTypeConfig, "configuration"},
	{errors.ErrorTypeData, "data_error"},
	{errors.ErrorTypeInternal, "internal"},
}

// ErrorHandler classifies connector errors, decides retryability and keeps
// per-category counts for the connector metrics.
type ErrorHandler struct {
	log        *zap.Logger
	maxRetries int
	baseDelay  time.Duration

	seen    int64
	retried int64
	fatal   int64

	mu     sync.Mutex
	byKind map[string]int64
}

// NewErrorHandler creates a handler allowing maxRetries attempts with
// exponential backoff starting at baseDelay.
func NewErrorHandler(logger *zap.Logger, maxRetries int, baseDelay time.Duration) *ErrorHandler {
	return &ErrorHandler{
		log:        logger,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		byKind:     make(map[string]int64),
	}
}

// HandleError classifies err, logs it and wraps it so downstream code can
// tell transient failures from permanent ones. A nil err returns nil.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, record *pool.Record) error {
	if err == nil {
		return nil
	}

	atomic.AddInt64(&eh.seen, 1)

	kind := classifyError(err)
	eh.mu.Lock()
	eh.byKind[kind]++
	eh.mu.Unlock()

	fields := []zap.Field{
		zap.Error(err),
		zap.String("error_type", kind),
	}
	if record != nil {
		fields = append(fields, zap.Any("record_id", record.ID))
	}

	if eh.ShouldRetry(err) {
		atomic.AddInt64(&eh.retried, 1)
		eh.log.Warn("transient error", fields...)
		return errors.Wrap(err, errors.ErrorTypeTimeout, "retryable error")
	}

	atomic.AddInt64(&eh.fatal, 1)
	eh.log.Error("permanent error", fields...)
	return errors.Wrap(err, errors.ErrorTypeInternal, "permanent error")
}

// ShouldRetry reports whether err is worth retrying. Typed errors take
// precedence over message sniffing.
func (eh *ErrorHandler) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.IsType(err, errors.ErrorTypeInternal) {
		return false
	}
	if errors.IsRetryable(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if matchesAny(msg, permanentPatterns) {
		return false
	}
	if matchesAny(msg, transientPatterns) {
		return true
	}

	return errors.IsType(err, errors.ErrorTypeConnection) ||
		errors.IsType(err, errors.ErrorTypeTimeout)
}

// GetRetryDelay returns the backoff delay for the given attempt with a
// +/-25% jitter applied.
func (eh *ErrorHandler) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return eh.baseDelay
	}

	delay := eh.baseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitter := time.Duration((rand.Float64()*2 - 1) * 0.25 * float64(delay))
	return delay + jitter
}

// GetErrorStats returns cumulative error counts split by category.
func (eh *ErrorHandler) GetErrorStats() map[string]interface{} {
	eh.mu.Lock()
	byKind := make(map[string]int64, len(eh.byKind))
	for k, v := range eh.byKind {
		byKind[k] = v
	}
	eh.mu.Unlock()

	return map[string]interface{}{
		"total_errors":   atomic.LoadInt64(&eh.seen),
		"retried_errors": atomic.LoadInt64(&eh.retried),
		"fatal_errors":   atomic.LoadInt64(&eh.fatal),
		"errors_by_type": byKind,
	}
}

// ExecuteWithRetry runs fn until it succeeds, returns a permanent error or
// the retry budget is exhausted. The context cancels waits between attempts.
func (eh *ErrorHandler) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= eh.maxRetries; attempt++ {
		if attempt > 0 {
			delay := eh.GetRetryDelay(attempt)
			eh.log.Info("retrying operation",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !eh.ShouldRetry(err) {
			return err
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", eh.maxRetries+1, lastErr)
}

// classifyError buckets an error for stats and logging. Typed errors map
// directly; untyped ones are sniffed from the message.
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	for _, k := range errorKindLabels {
		if errors.IsType(err, k.kind) {
			return k.label
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "auth"), strings.Contains(msg, "unauthorized"):
		return "authentication"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "throttle"):
		return "rate_limit"
	case strings.Contains(msg, "config"):
		return "configuration"
	case strings.Contains(msg, "parse"), strings.Contains(msg, "unmarshal"):
		return "parsing"
	case strings.Contains(msg, "i/o"):
		return "io"
	default:
		return "unknown"
	}
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
