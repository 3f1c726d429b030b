package clients

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	// halfOpenProbeLimit caps how many requests may probe the backend
	// while the breaker is half-open.
	halfOpenProbeLimit = 5

	// failureRateTrip opens the breaker when the windowed failure rate
	// crosses it, but only once the window holds rateTripMinRequests
	// so a single early failure cannot trip a fresh breaker.
	failureRateTrip     = 0.5
	rateTripMinRequests = 10

	windowBucket = 10 * time.Second
	windowSpan   = 60 * time.Second
)

// CircuitBreaker is an alias for HTTPCircuitBreaker.
type CircuitBreaker = HTTPCircuitBreaker

// CircuitBreakerConfig is the configuration for a standalone breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive successes before closing
	Timeout          time.Duration // how long to stay open before probing
}

// NewCircuitBreaker creates a standalone circuit breaker with a nop
// logger.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return NewHTTPCircuitBreaker(&HTTPConfig{
		FailureThreshold: config.FailureThreshold,
		SuccessThreshold: config.SuccessThreshold,
		Timeout:          config.Timeout,
	}, zap.NewNop())
}

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows all requests through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests until the timeout expires.
	StateOpen
	// StateHalfOpen admits a limited number of probe requests.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// HTTPCircuitBreaker sheds load from a failing backend: consecutive
// failures or a high windowed failure rate open it, a timeout later
// it admits probes, and enough successful probes close it again.
type HTTPCircuitBreaker struct {
	cfg *HTTPConfig
	log *zap.Logger

	mu            sync.Mutex
	state         CircuitState
	changedAt     time.Time
	retryAt       time.Time
	failureStreak int
	successStreak int
	probes        int

	window *SlidingWindow
}

// NewHTTPCircuitBreaker creates a breaker in the closed state. The
// failure rate is computed over a one-minute sliding window.
func NewHTTPCircuitBreaker(config *HTTPConfig, logger *zap.Logger) *HTTPCircuitBreaker {
	return &HTTPCircuitBreaker{
		cfg:       config,
		log:       logger.With(zap.String("component", "circuit_breaker")),
		state:     StateClosed,
		changedAt: time.Now(),
		window:    NewSlidingWindow(windowBucket, windowSpan),
	}
}

// Execute runs fn under breaker protection, recording its outcome.
// While the breaker is open it returns ErrCircuitOpen without calling
// fn.
func (cb *HTTPCircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a request may proceed, transitioning an
// expired open breaker to half-open on the way.
func (cb *HTTPCircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Now().Before(cb.retryAt) {
			return false
		}
		cb.toHalfOpen()
		return cb.admitProbe()

	case StateHalfOpen:
		return cb.admitProbe()

	default:
		return false
	}
}

// RecordSuccess records a successful request. Enough successes while
// half-open close the breaker.
func (cb *HTTPCircuitBreaker) RecordSuccess() {
	cb.window.Record(true)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureStreak = 0
	case StateHalfOpen:
		cb.successStreak++
		if cb.successStreak >= cb.cfg.SuccessThreshold {
			cb.toClosed()
		}
	}
}

// RecordFailure records a failed request. Too many failures open the
// breaker; any failure while half-open reopens it immediately.
func (cb *HTTPCircuitBreaker) RecordFailure() {
	cb.window.Record(false)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failureStreak++
		if cb.failureStreak >= cb.cfg.FailureThreshold || cb.rateTripped() {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *HTTPCircuitBreaker) rateTripped() bool {
	stats := cb.window.Stats()
	return stats.TotalRequests >= rateTripMinRequests && stats.FailureRate > failureRateTrip
}

// admitProbe is called with the lock held.
func (cb *HTTPCircuitBreaker) admitProbe() bool {
	if cb.probes >= halfOpenProbeLimit {
		return false
	}
	cb.probes++
	return true
}

// State transitions: all called with the lock held.

func (cb *HTTPCircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.changedAt = time.Now()
	cb.retryAt = cb.changedAt.Add(cb.cfg.Timeout)
	cb.successStreak = 0
	cb.probes = 0

	cb.log.Warn("circuit breaker opened",
		zap.Time("retry_after", cb.retryAt),
		zap.Int("consecutive_failures", cb.failureStreak))
}

func (cb *HTTPCircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.changedAt = time.Now()
	cb.failureStreak = 0
	cb.successStreak = 0
	cb.probes = 0

	cb.log.Info("circuit breaker half-open")
}

func (cb *HTTPCircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.changedAt = time.Now()
	cb.failureStreak = 0
	cb.probes = 0

	cb.log.Info("circuit breaker closed")
}

// GetState returns the current state and windowed request statistics.
func (cb *HTTPCircuitBreaker) GetState() CircuitBreakerState {
	stats := cb.window.Stats()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerState{
		State:                cb.state.String(),
		LastStateChange:      cb.changedAt,
		ConsecutiveFailures:  cb.failureStreak,
		ConsecutiveSuccesses: cb.successStreak,
		TotalRequests:        stats.TotalRequests,
		FailedRequests:       stats.FailedRequests,
		FailureRate:          stats.FailureRate,
		NextRetryTime:        cb.retryAt,
	}
}

// CircuitBreakerState is a snapshot of a breaker for reporting.
type CircuitBreakerState struct {
	State                string    `json:"state"`
	LastStateChange      time.Time `json:"last_state_change"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	TotalRequests        int64     `json:"total_requests"`
	FailedRequests       int64     `json:"failed_requests"`
	FailureRate          float64   `json:"failure_rate"`
	NextRetryTime        time.Time `json:"next_retry_time,omitempty"`
}

// SlidingWindow counts request outcomes over a ring of time buckets
// so failure rates reflect only recent traffic.
type SlidingWindow struct {
	mu       sync.Mutex
	requests []int64
	failures []int64
	bucket   int
	rotated  time.Time
	span     time.Duration // width of one bucket
}

// NewSlidingWindow creates a window of windowSize split into buckets
// of bucketSize.
func NewSlidingWindow(bucketSize, windowSize time.Duration) *SlidingWindow {
	n := int(windowSize / bucketSize)
	if n < 1 {
		n = 1
	}
	return &SlidingWindow{
		requests: make([]int64, n),
		failures: make([]int64, n),
		span:     bucketSize,
		rotated:  time.Now(),
	}
}

// Record counts one request outcome in the current bucket.
func (sw *SlidingWindow) Record(success bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.rotate()
	sw.requests[sw.bucket]++
	if !success {
		sw.failures[sw.bucket]++
	}
}

// rotate advances past buckets that have aged out, clearing them for
// reuse. Called with the lock held.
func (sw *SlidingWindow) rotate() {
	elapsed := time.Since(sw.rotated)
	if elapsed < sw.span {
		return
	}

	steps := int(elapsed / sw.span)
	if steps > len(sw.requests) {
		steps = len(sw.requests)
	}
	for i := 0; i < steps; i++ {
		sw.bucket = (sw.bucket + 1) % len(sw.requests)
		sw.requests[sw.bucket] = 0
		sw.failures[sw.bucket] = 0
	}
	sw.rotated = time.Now()
}

// FailureRate returns the fraction of failed requests in the window.
func (sw *SlidingWindow) FailureRate() float64 {
	return sw.Stats().FailureRate
}

// Stats returns the totals for the current window.
func (sw *SlidingWindow) Stats() WindowStats {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.rotate()

	var total, failed int64
	for i := range sw.requests {
		total += sw.requests[i]
		failed += sw.failures[i]
	}

	ws := WindowStats{TotalRequests: total, FailedRequests: failed}
	if total > 0 {
		ws.FailureRate = float64(failed) / float64(total)
	}
	return ws
}

// WindowStats are totals over a sliding time window.
type WindowStats struct {
	TotalRequests  int64   `json:"total_requests"`
	FailedRequests int64   `json:"failed_requests"`
	FailureRate    float64 `json:"failure_rate"`
}
