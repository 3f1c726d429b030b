// Package base supplies the embedded runtime shared by every
// connector: reliability guards (circuit breaker, rate limiter,
// retries), periodic health checks, metrics collection, progress
// reporting, and adaptive batch sizing.
//
// Connectors embed BaseConnector and call Initialize before use:
//
//	type CampaignSource struct {
//		*base.BaseConnector
//	}
//
//	func NewCampaignSource() *CampaignSource {
//		return &CampaignSource{
//			BaseConnector: base.NewBaseConnector("campaigns", core.ConnectorTypeSource, "1.0.0"),
//		}
//	}
//
// Initialize builds the production features from the connector config
// and Close releases them. Between the two, connectors funnel their
// outbound calls through RateLimit and ExecuteWithCircuitBreaker and
// report outcomes through the metrics and progress helpers.
package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parallaxworks/parallax/pkg/clients"
	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/logger"
	"github.com/parallaxworks/parallax/pkg/metrics"
	"github.com/parallaxworks/parallax/pkg/pool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Initialize defaults. Rate limits come from the connector config;
// the breaker and health cadence are fixed.
const (
	breakerFailures  = 5
	breakerSuccesses = 3
	breakerCooldown  = 30 * time.Second
	healthInterval   = 30 * time.Second
)

// BaseConnector carries the shared runtime for a connector. The zero
// value is not usable; construct with NewBaseConnector and call
// Initialize before any other method.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string

	config *config.BaseConfig
	logger *zap.Logger

	// Reliability guards, built by Initialize.
	breaker    *clients.CircuitBreaker
	limiter    clients.RateLimiter
	retry      *RetryPolicy
	errHandler *ErrorHandler

	// Observability, built by Initialize.
	health    *HealthChecker
	collector *metrics.Collector
	progress  *ProgressReporter
	optimizer *PerformanceOptimizer

	// Sync state for sources that do not track their own.
	mu       sync.RWMutex
	state    core.State
	position core.Position

	ctx    context.Context
	cancel context.CancelFunc
	closed int32
}

// NewBaseConnector creates the shared runtime for the named connector.
// Connector implementations call this during construction and embed
// the result.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	return &BaseConnector{
		name:          name,
		connectorType: connectorType,
		version:       version,
		state:         make(core.State),
		logger:        logger.Get().With(zap.String("connector", name)),
	}
}

// Initialize builds the production features from cfg. It must run
// before the connector handles any traffic; Close releases everything
// started here.
func (bc *BaseConnector) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	bc.config = cfg
	bc.ctx, bc.cancel = context.WithCancel(ctx)
	bc.applyObservability(cfg.Observability)

	if cfg.Reliability.CircuitBreaker {
		bc.breaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
			FailureThreshold: breakerFailures,
			SuccessThreshold: breakerSuccesses,
			Timeout:          breakerCooldown,
		})
	}
	if rate := cfg.Reliability.RateLimitPerSec; rate > 0 {
		// Bursts may run at twice the sustained rate.
		bc.limiter = clients.NewRateLimiter(rate, rate*2)
	}
	bc.retry = NewRetryPolicy(cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay)
	if m := cfg.Reliability.RetryMultiplier; m > 1 {
		bc.retry.Multiplier = m
	}
	if d := cfg.Reliability.MaxRetryDelay; d > 0 {
		bc.retry.MaxDelay = d
	}
	bc.errHandler = NewErrorHandler(bc.logger, cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay)

	bc.collector = metrics.NewCollector(bc.name)
	bc.optimizer = NewPerformanceOptimizer(bc.collector)
	bc.progress = NewProgressReporter(bc.logger, bc.collector)
	if iv := cfg.Observability.MetricsInterval; iv > 0 {
		bc.progress.interval = iv
	}

	if cfg.Reliability.HealthCheck {
		bc.health = NewHealthChecker(bc.name, healthInterval)
		bc.health.Start(bc.ctx)
	}

	bc.logger.Info("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))

	return nil
}

// applyObservability adjusts the connector logger: logging can be
// silenced entirely or floored at a higher level than the global one.
func (bc *BaseConnector) applyObservability(obs config.ObservabilityConfig) {
	if !obs.EnableLogging {
		bc.logger = zap.NewNop()
		return
	}
	if obs.LogLevel != "" {
		if level, err := zapcore.ParseLevel(obs.LogLevel); err == nil {
			bc.logger = bc.logger.WithOptions(zap.IncreaseLevel(level))
		}
	}
}

// Name returns the connector name.
func (bc *BaseConnector) Name() string { return bc.name }

// Type reports whether this is a source or a destination.
func (bc *BaseConnector) Type() core.ConnectorType { return bc.connectorType }

// Version returns the connector version.
func (bc *BaseConnector) Version() string { return bc.version }

// GetLogger returns the connector-scoped logger.
func (bc *BaseConnector) GetLogger() *zap.Logger { return bc.logger }

// GetState returns a copy of the connector state; callers may modify
// the copy freely.
func (bc *BaseConnector) GetState() core.State {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	out := make(core.State, len(bc.state))
	for k, v := range bc.state {
		out[k] = v
	}
	return out
}

// SetState replaces the connector state.
func (bc *BaseConnector) SetState(state core.State) error {
	bc.mu.Lock()
	bc.state = state
	bc.mu.Unlock()

	bc.logger.Debug("state updated", zap.Any("state", state))
	return nil
}

// GetPosition returns the current stream position.
func (bc *BaseConnector) GetPosition() core.Position {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.position
}

// SetPosition moves the stream position.
func (bc *BaseConnector) SetPosition(position core.Position) error {
	bc.mu.Lock()
	bc.position = position
	bc.mu.Unlock()

	bc.logger.Debug("position updated", zap.String("position", position.String()))
	return nil
}

// Health reports the connector's current health. A closed connector
// is always unhealthy.
func (bc *BaseConnector) Health(ctx context.Context) error {
	if atomic.LoadInt32(&bc.closed) == 1 {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}
	if bc.health == nil {
		return nil
	}

	status := bc.health.GetStatus()
	switch {
	case status.Status == "healthy":
		return nil
	case status.Error != nil:
		return errors.Wrap(status.Error, errors.ErrorTypeHealth, "health check failed")
	default:
		return errors.Newf(errors.ErrorTypeHealth, "connector is %s", status.Status)
	}
}

// IsHealthy is the boolean form of Health.
func (bc *BaseConnector) IsHealthy() bool {
	if atomic.LoadInt32(&bc.closed) == 1 {
		return false
	}
	return bc.health == nil || bc.health.IsHealthy()
}

// UpdateHealth overrides the health status outside the periodic check.
func (bc *BaseConnector) UpdateHealth(healthy bool, details map[string]interface{}) {
	if bc.health != nil {
		bc.health.UpdateStatus(healthy, details)
	}
}

// SetHealthCheck installs the probe run by the periodic health
// checker.
func (bc *BaseConnector) SetHealthCheck(fn func(ctx context.Context) error) {
	if bc.health != nil {
		bc.health.SetCheckFunc(fn)
	}
}

// Metrics snapshots the connector's operational metrics, including
// the state of the reliability guards.
func (bc *BaseConnector) Metrics() map[string]interface{} {
	m := bc.collector.GetAll()
	m["name"] = bc.name
	m["type"] = bc.connectorType
	m["version"] = bc.version
	m["uptime"] = time.Since(bc.collector.StartTime()).Seconds()

	if bc.breaker != nil {
		st := bc.breaker.GetState()
		m["circuit_breaker_state"] = st.State
		m["circuit_breaker_failure_rate"] = st.FailureRate
	}
	if bc.limiter != nil {
		st := bc.limiter.GetStats()
		m["rate_limit"] = st.Rate
		m["rate_limit_burst"] = st.Burst
		m["rate_limiter_allowed"] = st.AllowedRequests
		m["rate_limiter_blocked"] = st.BlockedRequests
	}
	if bc.health != nil {
		m["health_status"] = bc.health.GetStatus().Status
		m["health_check_count"] = bc.health.CheckCount()
		m["health_failure_count"] = bc.health.FailureCount()
	}
	return m
}

// Close stops background work and marks the connector closed. Safe to
// call more than once.
func (bc *BaseConnector) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&bc.closed, 0, 1) {
		return nil
	}

	bc.logger.Info("closing connector")
	if bc.cancel != nil {
		bc.cancel()
	}
	if bc.health != nil {
		bc.health.Stop()
	}
	return nil
}

// ExecuteWithCircuitBreaker runs fn behind the circuit breaker. When
// the breaker is open the call fails immediately without running fn;
// with the breaker disabled fn runs unguarded.
func (bc *BaseConnector) ExecuteWithCircuitBreaker(fn func() error) error {
	if bc.breaker == nil {
		return fn()
	}
	return bc.breaker.Execute(fn)
}

// ExecuteWithRetry runs fn under the retry policy with exponential
// backoff. Only failures the error handler classifies as retryable
// are attempted again.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return bc.retry.ExecuteWithCondition(ctx, fn, bc.errHandler.ShouldRetry)
}

// RateLimit blocks until the limiter admits one request. Connectors
// without a configured rate limit pass through immediately.
func (bc *BaseConnector) RateLimit(ctx context.Context) error {
	if bc.limiter == nil {
		return nil
	}
	return bc.limiter.Wait(ctx)
}

// HandleError classifies and records err. The returned error carries
// the classification so callers can decide whether to continue.
func (bc *BaseConnector) HandleError(ctx context.Context, err error, record *pool.Record) error {
	return bc.errHandler.HandleError(ctx, err, record)
}

// RecordCounter adds value to the named counter metric.
func (bc *BaseConnector) RecordCounter(name string, value float64) {
	bc.collector.RecordCounter(name, value)
}

// RecordGauge sets the named gauge metric.
func (bc *BaseConnector) RecordGauge(name string, value float64) {
	bc.collector.RecordGauge(name, value)
}

// ReportProgress publishes sync progress; total may be -1 when the
// stream length is unknown.
func (bc *BaseConnector) ReportProgress(processed, total int64) {
	bc.progress.ReportProgress(processed, total)
}

// OptimizeBatchSize feeds current metrics to the optimizer and
// returns the batch size to use next. Recommendations move gradually,
// so callers re-apply between batches.
func (bc *BaseConnector) OptimizeBatchSize(current int) int {
	if bc.optimizer == nil {
		return current
	}
	return bc.optimizer.OptimizeBatchSize(current, bc.Metrics())
}
