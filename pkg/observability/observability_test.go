package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// initTestObservability initializes the package with a test-friendly
// config. The first call in the test binary wins; later calls are
// no-ops, so every test funnels through the same configuration.
func initTestObservability(t *testing.T) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Tracing.ServiceName = "parallax-test"
	cfg.Tracing.SamplingRate = 1.0
	cfg.Logging.Level = zapcore.DebugLevel
	require.NoError(t, Initialize(cfg))
}

// captureLogs swaps an observer core in as the package logger and
// restores the real one when the test ends.
func captureLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	prev := log
	log = zap.New(core)
	t.Cleanup(func() { log = prev })
	return logs
}

func TestInitializeProvidesGlobals(t *testing.T) {
	initTestObservability(t)

	assert.NotNil(t, GetTracer())
	assert.NotNil(t, GetMeter())
	assert.NotNil(t, GetLogger())
}

func TestConnectorTracer(t *testing.T) {
	initTestObservability(t)

	ct := NewConnectorTracer("source", "amazon-ads")
	ctx := context.Background()

	err := ct.TraceRecord(ctx, "campaign-123", "read", func() error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	wantErr := errors.New("throttled")
	err = ct.TraceRecord(ctx, "campaign-456", "read", func() error {
		return wantErr
	})
	assert.Equal(t, wantErr, err, "TraceRecord must return the callback error unchanged")

	err = ct.TraceBatch(ctx, 100, "process", func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
}

func TestDistributedTracerRoundTrip(t *testing.T) {
	initTestObservability(t)

	dt := NewDistributedTracer()

	ctx, span := GetTracer().Start(context.Background(), "outgoing-request")
	defer span.End()

	carrier := dt.InjectContext(ctx)
	require.NotEmpty(t, carrier, "an active span must produce carrier headers")
	require.Contains(t, carrier, "traceparent")

	extracted := dt.ExtractContext(context.Background(), carrier)
	_, child := GetTracer().Start(extracted, "incoming-request")
	defer child.End()

	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())
}

func TestMetricsCollector(t *testing.T) {
	initTestObservability(t)

	mc := NewMetricsCollector("source", "collector-test")

	mc.RecordDuration("read", 100*time.Millisecond, "success")
	mc.RecordThroughput("read", 1250)
	mc.RecordRecordsProcessed("read", 100, "success")
	mc.RecordRecordsProcessed("read", 50, "success")
	mc.RecordBatchSize("read", 100)
	mc.RecordError("read", "io_error")
	mc.RecordRetry("read")
	mc.SetActiveConnections(5)

	assert.Equal(t, 1250.0, testutil.ToFloat64(connectorThroughput.WithLabelValues("source", "collector-test", "read")))
	assert.Equal(t, 150.0, testutil.ToFloat64(connectorRecordsProcessed.WithLabelValues("source", "collector-test", "read", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(connectorErrors.WithLabelValues("source", "collector-test", "read", "io_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(connectorRetries.WithLabelValues("source", "collector-test", "read")))
	assert.Equal(t, 5.0, testutil.ToFloat64(connectorConnections.WithLabelValues("source", "collector-test")))
}

func TestStructuredLogger(t *testing.T) {
	initTestObservability(t)
	logs := captureLogs(t)

	sl := NewStructuredLogger("source", "amazon-ads")

	sl.WithContext(context.Background()).Info("no active span")

	op := sl.WithOperation("read")
	op.LogStart("starting read")
	op.LogProgress("reading campaigns", 0.5)
	op.LogComplete("read finished")
	op.LogError("read failed", errors.New("boom"))

	ctx, span := GetTracer().Start(context.Background(), "read-campaigns")
	sl.WithContext(ctx).Info("inside span")
	span.End()

	entries := logs.All()
	require.Len(t, entries, 6)

	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	assert.Equal(t, "start", entries[1].ContextMap()["phase"])
	assert.Equal(t, 50.0, entries[2].ContextMap()["progress_percent"])
	assert.Equal(t, "complete", entries[3].ContextMap()["phase"])
	assert.Equal(t, zapcore.ErrorLevel, entries[4].Level)
	assert.Contains(t, entries[5].ContextMap(), "trace_id")

	for _, e := range entries {
		assert.Equal(t, "amazon-ads", e.ContextMap()["connector_name"])
	}
}

func TestPerformanceTracker(t *testing.T) {
	initTestObservability(t)

	mc := NewMetricsCollector("source", "perf-test")
	pt := NewPerformanceTracker(mc, "read")

	pt.RecordProcessed(100)
	time.Sleep(10 * time.Millisecond)
	pt.RecordProcessed(200)
	pt.RecordError("io_error")
	pt.RecordRetry()

	assert.Greater(t, pt.GetCurrentThroughput(), 0.0)

	stats := pt.GetStats()
	assert.Equal(t, int64(300), stats.RecordsProcessed)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.Retries)
	assert.InDelta(t, 1.0/300.0, stats.ErrorRate, 1e-9)

	stats.LogStats(GetLogger())
}

func TestConnectorMetricsTrackOperation(t *testing.T) {
	initTestObservability(t)

	cm := NewConnectorMetrics("source", "amazon-ads")
	ctx := context.Background()

	err := cm.TrackOperation(ctx, "read", func() error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	wantErr := errors.New("boom")
	err = cm.TrackOperation(ctx, "read", func() error {
		return wantErr
	})
	assert.Equal(t, wantErr, err, "TrackOperation must return the callback error unchanged")
}

func TestPipelineMetrics(t *testing.T) {
	initTestObservability(t)

	pm := NewPipelineMetrics("amazon-ads-to-jsonl")

	pm.RecordExtracted()
	pm.RecordExtracted()
	pm.RecordTransformed()
	pm.RecordsLoaded(50)
	pm.RecordError("load", "write_error")

	stats := pm.GetStats()
	assert.Equal(t, int64(2), stats["records_extracted"])
	assert.Equal(t, int64(1), stats["records_transformed"])
	assert.Equal(t, int64(50), stats["records_loaded"])
	assert.Equal(t, int64(1), stats["errors"])
}

func TestRecordMetrics(t *testing.T) {
	initTestObservability(t)
	logs := captureLogs(t)

	op := NewStructuredLogger("source", "amazon-ads").WithOperation("read")
	rm := NewRecordMetrics(op)
	rm.SetLogInterval(time.Millisecond)

	rm.RecordProcessed(100, 1024)
	time.Sleep(2 * time.Millisecond)
	rm.RecordProcessed(200, 2048)
	rm.RecordError()
	rm.LogFinal()

	entries := logs.All()
	require.NotEmpty(t, entries)

	final := entries[len(entries)-1].ContextMap()
	assert.Equal(t, int64(300), final["total_records"])
	assert.Equal(t, int64(1), final["total_errors"])
	assert.Equal(t, int64(3072), final["total_bytes"])
}

// Runs last: Shutdown stops the tracer provider for the test binary.
func TestShutdown(t *testing.T) {
	initTestObservability(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, Shutdown(ctx))
}
