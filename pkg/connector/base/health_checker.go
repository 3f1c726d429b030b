package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/logger"
	"go.uber.org/zap"
)

const (
	// probeTimeout bounds a single health probe.
	probeTimeout = 10 * time.Second

	// unhealthyAfter is the consecutive failure count at which the status
	// drops from degraded to unhealthy.
	unhealthyAfter = 3
)

// HealthChecker runs a connector health probe on a fixed interval and keeps
// the most recent observation. Connectors install a probe with SetCheckFunc;
// without one the checker only reflects manual UpdateStatus calls.
type HealthChecker struct {
	name     string
	interval time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	probe     func(ctx context.Context) error
	state     string
	checkedAt time.Time
	lastErr   error
	streak    int // consecutive probe failures
	extra     map[string]interface{}

	checks   int64
	failures int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthChecker creates a checker for the named connector. Probing does
// not begin until Start is called.
func NewHealthChecker(name string, interval time.Duration) *HealthChecker {
	return &HealthChecker{
		name:      name,
		interval:  interval,
		log:       logger.Get().With(zap.String("connector", name), zap.String("component", "health")),
		state:     "healthy",
		checkedAt: time.Now(),
		extra:     make(map[string]interface{}),
	}
}

// SetCheckFunc installs the probe invoked on every check cycle.
func (hc *HealthChecker) SetCheckFunc(fn func(ctx context.Context) error) {
	hc.mu.Lock()
	hc.probe = fn
	hc.mu.Unlock()
}

// Start launches the probe loop. An initial check runs immediately; the loop
// exits when ctx is cancelled or Stop is called.
func (hc *HealthChecker) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	hc.cancel = cancel

	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()

		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		hc.runCheck(loopCtx)

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				hc.runCheck(loopCtx)
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (hc *HealthChecker) Stop() {
	if hc.cancel != nil {
		hc.cancel()
	}
	hc.wg.Wait()
}

func (hc *HealthChecker) runCheck(ctx context.Context) {
	atomic.AddInt64(&hc.checks, 1)

	hc.mu.Lock()
	probe := hc.probe
	hc.mu.Unlock()

	var err error
	if probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err = probe(probeCtx)
		cancel()
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checkedAt = time.Now()

	if err == nil {
		hc.streak = 0
		hc.state = "healthy"
		hc.lastErr = nil
		hc.log.Debug("health check passed")
		return
	}

	atomic.AddInt64(&hc.failures, 1)
	hc.streak++
	hc.lastErr = err
	if hc.streak >= unhealthyAfter {
		hc.state = "unhealthy"
	} else {
		hc.state = "degraded"
	}

	hc.log.Warn("health check failed",
		zap.Error(err),
		zap.String("status", hc.state),
		zap.Int("consecutive_failures", hc.streak))
}

// GetStatus assembles the current health status. The returned value is a
// snapshot the caller may mutate freely.
func (hc *HealthChecker) GetStatus() *core.HealthStatus {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	details := make(map[string]interface{}, len(hc.extra)+4)
	for k, v := range hc.extra {
		details[k] = v
	}
	details["check_count"] = atomic.LoadInt64(&hc.checks)
	details["failure_count"] = atomic.LoadInt64(&hc.failures)
	if hc.streak > 0 {
		details["consecutive_failures"] = hc.streak
	}
	if hc.lastErr != nil {
		details["last_error"] = hc.lastErr.Error()
	}

	return &core.HealthStatus{
		Status:    hc.state,
		Timestamp: hc.checkedAt,
		Details:   details,
		Error:     hc.lastErr,
	}
}

// UpdateStatus overrides the probed status and merges details into the ones
// GetStatus reports. Marking healthy clears the failure streak.
func (hc *HealthChecker) UpdateStatus(healthy bool, details map[string]interface{}) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checkedAt = time.Now()
	if healthy {
		hc.state = "healthy"
		hc.lastErr = nil
		hc.streak = 0
	} else {
		hc.state = "unhealthy"
	}

	for k, v := range details {
		hc.extra[k] = v
	}
}

// CheckCount returns the number of probes run so far.
func (hc *HealthChecker) CheckCount() int64 {
	return atomic.LoadInt64(&hc.checks)
}

// FailureCount returns the number of failed probes.
func (hc *HealthChecker) FailureCount() int64 {
	return atomic.LoadInt64(&hc.failures)
}

// IsHealthy reports whether the latest observation was healthy.
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.state == "healthy"
}
