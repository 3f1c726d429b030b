package base

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthCheckerFailureStreak(t *testing.T) {
	hc := NewHealthChecker("source-amazon-ads", time.Minute)
	hc.SetCheckFunc(func(ctx context.Context) error {
		return fmt.Errorf("connection refused")
	})

	hc.runCheck(context.Background())
	assert.Equal(t, "degraded", hc.GetStatus().Status, "one failure should only degrade")

	hc.runCheck(context.Background())
	hc.runCheck(context.Background())

	status := hc.GetStatus()
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, int64(3), hc.CheckCount())
	assert.Equal(t, int64(3), hc.FailureCount())
	assert.Equal(t, 3, status.Details["consecutive_failures"])
	assert.Equal(t, "connection refused", status.Details["last_error"])

	hc.SetCheckFunc(func(ctx context.Context) error { return nil })
	hc.runCheck(context.Background())

	status = hc.GetStatus()
	assert.Equal(t, "healthy", status.Status)
	assert.Nil(t, status.Error)
	assert.NotContains(t, status.Details, "consecutive_failures")
	assert.Equal(t, int64(4), hc.CheckCount())
	assert.Equal(t, int64(3), hc.FailureCount(), "recovery should not erase failure history")
}

func TestHealthCheckerManualOverride(t *testing.T) {
	hc := NewHealthChecker("destination-jsonl", time.Minute)
	assert.True(t, hc.IsHealthy(), "checkers start healthy")

	hc.UpdateStatus(false, map[string]interface{}{"reason": "output file not writable"})
	status := hc.GetStatus()
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "output file not writable", status.Details["reason"])
	assert.False(t, hc.IsHealthy())

	hc.UpdateStatus(true, nil)
	assert.True(t, hc.IsHealthy())
}

func TestHealthCheckerStartStop(t *testing.T) {
	hc := NewHealthChecker("source-amazon-ads", 5*time.Millisecond)
	var probes int64
	hc.SetCheckFunc(func(ctx context.Context) error {
		atomic.AddInt64(&probes, 1)
		return nil
	})

	hc.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	hc.Stop()

	ran := atomic.LoadInt64(&probes)
	assert.GreaterOrEqual(t, ran, int64(1), "the initial check runs before the first tick")
	assert.Equal(t, ran, hc.CheckCount())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, ran, atomic.LoadInt64(&probes), "no probes run after Stop returns")
}

func TestErrorHandlerShouldRetry(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop(), 3, time.Millisecond)

	cases := []struct {
		err   error
		retry bool
	}{
		{fmt.Errorf("dial tcp: connection refused"), true},
		{fmt.Errorf("request timeout after 30s"), true},
		{fmt.Errorf("429 too many requests"), true},
		{fmt.Errorf("401 unauthorized"), false},
		{fmt.Errorf("profile not found"), false},
		{fmt.Errorf("some inscrutable failure"), false},
		{errors.New(errors.ErrorTypeConnection, "stream closed"), true},
		{errors.New(errors.ErrorTypeRateLimit, "report quota exhausted"), true},
		{errors.New(errors.ErrorTypeInternal, "worker panic"), false},
		{nil, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.retry, eh.ShouldRetry(tc.err), "error: %v", tc.err)
	}
}

func TestErrorHandlerWrapsByRetryability(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop(), 3, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, eh.HandleError(ctx, nil, nil))

	transient := eh.HandleError(ctx, fmt.Errorf("connection reset by peer"), nil)
	require.Error(t, transient)
	assert.True(t, errors.IsType(transient, errors.ErrorTypeTimeout), "transient failures wrap as retryable")
	assert.True(t, eh.ShouldRetry(transient))

	permanent := eh.HandleError(ctx, fmt.Errorf("400 bad request"), nil)
	require.Error(t, permanent)
	assert.True(t, errors.IsType(permanent, errors.ErrorTypeInternal))
	assert.False(t, eh.ShouldRetry(permanent))

	stats := eh.GetErrorStats()
	assert.Equal(t, int64(2), stats["total_errors"])
	assert.Equal(t, int64(1), stats["retried_errors"])
	assert.Equal(t, int64(1), stats["fatal_errors"])

	byKind, ok := stats["errors_by_type"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(1), byKind["connection"])
	assert.Equal(t, int64(1), byKind["unknown"])
}

func TestErrorHandlerExecuteWithRetry(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop(), 3, time.Millisecond)
	ctx := context.Background()

	attempts := 0
	err := eh.ExecuteWithRetry(ctx, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = eh.ExecuteWithRetry(ctx, func() error {
		attempts++
		return fmt.Errorf("invalid credentials")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "permanent errors stop the retry loop")

	attempts = 0
	err = eh.ExecuteWithRetry(ctx, func() error {
		attempts++
		return fmt.Errorf("timeout")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, 4, attempts, "maxRetries of 3 allows four attempts")
}

func TestErrorHandlerRetryDelay(t *testing.T) {
	eh := NewErrorHandler(zap.NewNop(), 3, time.Second)

	assert.Equal(t, time.Second, eh.GetRetryDelay(0), "attempt zero gets the base delay without jitter")

	delay := eh.GetRetryDelay(3)
	assert.GreaterOrEqual(t, delay, 3*time.Second, "4s nominal minus 25% jitter")
	assert.LessOrEqual(t, delay, 5*time.Second, "4s nominal plus 25% jitter")

	capped := eh.GetRetryDelay(30)
	assert.LessOrEqual(t, capped, maxRetryDelay+maxRetryDelay/4)
}

func TestRetryPolicyExecute(t *testing.T) {
	rp := NewRetryPolicy(3, time.Millisecond)
	ctx := context.Background()

	attempts := 0
	err := rp.Execute(ctx, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("flaky page fetch")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = rp.Execute(ctx, func() error {
		attempts++
		return fmt.Errorf("always failing")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = rp.ExecuteWithCondition(ctx, func() error {
		attempts++
		return fmt.Errorf("401 unauthorized")
	}, func(error) bool { return false })
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a false condition stops retries immediately")
}

func TestProgressReporter(t *testing.T) {
	collector := metrics.NewCollector("source-amazon-ads")
	pr := NewProgressReporter(zap.NewNop(), collector)
	pr.interval = 0 // emit on every call
	pr.started = time.Now().Add(-10 * time.Second)

	pr.ReportProgress(50, 100)

	processed, total := pr.Progress()
	assert.Equal(t, int64(50), processed)
	assert.Equal(t, int64(100), total)
	assert.InDelta(t, 5.0, pr.Rate(), 0.5)
	assert.InDelta(t, 10.0, pr.ETA().Seconds(), 1.0)

	snapshot := collector.GetAll()
	assert.Equal(t, 50.0, snapshot["records_processed"])
	assert.Equal(t, 50.0, snapshot["progress_percent"])

	// A zero total keeps the last known total.
	pr.ReportProgress(100, 0)
	processed, total = pr.Progress()
	assert.Equal(t, int64(100), processed)
	assert.Equal(t, int64(100), total)
	assert.Equal(t, time.Duration(0), pr.ETA(), "done means no ETA")
}

func TestOptimizerConcurrency(t *testing.T) {
	po := NewPerformanceOptimizer(metrics.NewCollector("source-amazon-ads"))

	assert.Equal(t, 8, po.OptimizeConcurrency(10, map[string]interface{}{
		"cpu_usage": 0.95,
	}), "saturated CPU should back off")

	assert.Equal(t, 12, po.OptimizeConcurrency(10, map[string]interface{}{
		"cpu_usage":   0.3,
		"queue_depth": 5000,
	}), "idle CPU with a backlog should scale out")

	assert.Equal(t, 10, po.OptimizeConcurrency(10, map[string]interface{}{
		"cpu_usage": 0.7,
	}), "mid-range load keeps the current level")

	assert.Equal(t, 1, po.OptimizeConcurrency(1, map[string]interface{}{
		"cpu_usage": 0.99,
	}), "concurrency never drops below one")

	assert.Equal(t, 100, po.OptimizeConcurrency(95, map[string]interface{}{
		"cpu_usage":   0.2,
		"queue_depth": 100000,
	}), "concurrency is capped at 100")
}

func TestOptimizerBatchSize(t *testing.T) {
	po := NewPerformanceOptimizer(metrics.NewCollector("source-amazon-ads"))
	slow := map[string]interface{}{"throughput": 100.0}

	// Too little history: keep whatever the caller uses now.
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1000, po.OptimizeBatchSize(1000, slow))
	}

	// Five samples at a single size cannot beat themselves.
	assert.Equal(t, 1000, po.OptimizeBatchSize(1000, slow))

	// A size with better observed throughput pulls the recommendation toward it.
	fast := map[string]interface{}{"throughput": 500.0}
	assert.Equal(t, 2000, po.OptimizeBatchSize(2000, fast))
	assert.Equal(t, 1300, po.OptimizeBatchSize(1000, slow), "step 30% of the way toward the better size")
}

func TestOptimizerBatchSizeClamped(t *testing.T) {
	po := NewPerformanceOptimizer(nil)
	m := map[string]interface{}{}

	var got int
	for i := 0; i < 5; i++ {
		got = po.OptimizeBatchSize(60000, m)
	}
	assert.Equal(t, 50000, got, "recommendations stay inside the supported batch range")
}

func TestBaseConnectorLifecycle(t *testing.T) {
	bc := NewBaseConnector("source-amazon-ads", core.ConnectorTypeSource, "1.0.0")
	cfg := config.NewBaseConfig("source-amazon-ads", "source")

	ctx := context.Background()
	require.NoError(t, bc.Initialize(ctx, cfg))
	require.NoError(t, bc.Health(ctx))

	assert.Equal(t, "source-amazon-ads", bc.Name())
	assert.Equal(t, core.ConnectorTypeSource, bc.Type())
	assert.True(t, bc.IsHealthy())

	m := bc.Metrics()
	assert.Equal(t, "healthy", m["health_status"])

	bc.ReportProgress(10, 100)
	require.NoError(t, bc.ExecuteWithRetry(ctx, func() error { return nil }))

	attempts := 0
	err := bc.ExecuteWithRetry(ctx, func() error {
		attempts++
		return fmt.Errorf("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-retryable failures stop immediately")

	assert.Equal(t, 1000, bc.OptimizeBatchSize(1000), "no history keeps the current size")

	require.NoError(t, bc.Close(ctx))
	require.NoError(t, bc.Close(ctx), "closing twice is a no-op")
	assert.Error(t, bc.Health(ctx), "a closed connector is not healthy")
	assert.False(t, bc.IsHealthy())
}

func TestBaseConnectorStateRoundTrip(t *testing.T) {
	bc := NewBaseConnector("source-amazon-ads", core.ConnectorTypeSource, "1.0.0")

	require.NoError(t, bc.SetState(core.State{"next_token": "abc123"}))
	st := bc.GetState()
	assert.Equal(t, "abc123", st["next_token"])

	st["next_token"] = "mutated"
	assert.Equal(t, "abc123", bc.GetState()["next_token"], "GetState returns a copy")

	require.NoError(t, bc.SetPosition(fakePosition("p1")))
	assert.Equal(t, "p1", bc.GetPosition().String())
}

type fakePosition string

func (p fakePosition) String() string                  { return string(p) }
func (p fakePosition) Compare(other core.Position) int { return 0 }
