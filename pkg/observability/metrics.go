package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

var (
	connectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "operation_duration_seconds",
			Help:      "Duration of connector operations in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"connector_type", "connector_name", "operation", "status"},
	)

	connectorBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "batch_size",
			Help:      "Size of batches processed",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"connector_type", "connector_name", "operation"},
	)

	connectorRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "records_processed_total",
			Help:      "Total number of records processed",
		},
		[]string{"connector_type", "connector_name", "operation", "status"},
	)

	connectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "errors_total",
			Help:      "Total number of connector errors",
		},
		[]string{"connector_type", "connector_name", "operation", "error_type"},
	)

	connectorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "retries_total",
			Help:      "Total number of connector retries",
		},
		[]string{"connector_type", "connector_name", "operation"},
	)

	connectorThroughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "throughput_records_per_second",
			Help:      "Current throughput in records per second",
		},
		[]string{"connector_type", "connector_name", "operation"},
	)

	connectorConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "parallax",
			Subsystem: "connector",
			Name:      "active_connections",
			Help:      "Number of active connections",
		},
		[]string{"connector_type", "connector_name"},
	)

	// Catch-all instruments for durations and gauges recorded outside
	// a connector scope, e.g. span durations.
	generalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parallax",
			Subsystem: "observability",
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"operation", "component", "status"},
	)

	generalGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "parallax",
			Subsystem: "observability",
			Name:      "gauge_value",
			Help:      "General gauge values",
		},
		[]string{"metric", "component"},
	)
)

// MetricsCollector records Prometheus metrics for one connector
// instance.
type MetricsCollector struct {
	connectorType string
	connectorName string
}

// NewMetricsCollector creates a collector labelled with the connector
// identity.
func NewMetricsCollector(connectorType, connectorName string) *MetricsCollector {
	return &MetricsCollector{
		connectorType: connectorType,
		connectorName: connectorName,
	}
}

// RecordDuration observes the duration of one operation.
func (mc *MetricsCollector) RecordDuration(operation string, duration time.Duration, status string) {
	connectorDuration.WithLabelValues(mc.connectorType, mc.connectorName, operation, status).Observe(duration.Seconds())
}

// RecordThroughput sets the current records-per-second gauge.
func (mc *MetricsCollector) RecordThroughput(operation string, recordsPerSecond float64) {
	connectorThroughput.WithLabelValues(mc.connectorType, mc.connectorName, operation).Set(recordsPerSecond)
}

// RecordRecordsProcessed adds processed records to the counter.
func (mc *MetricsCollector) RecordRecordsProcessed(operation string, count int, status string) {
	connectorRecordsProcessed.WithLabelValues(mc.connectorType, mc.connectorName, operation, status).Add(float64(count))
}

// RecordBatchSize observes the size of one processed batch.
func (mc *MetricsCollector) RecordBatchSize(operation string, size int) {
	connectorBatchSize.WithLabelValues(mc.connectorType, mc.connectorName, operation).Observe(float64(size))
}

// RecordError counts one error of the given type.
func (mc *MetricsCollector) RecordError(operation, errorType string) {
	connectorErrors.WithLabelValues(mc.connectorType, mc.connectorName, operation, errorType).Inc()
}

// RecordRetry counts one retry.
func (mc *MetricsCollector) RecordRetry(operation string) {
	connectorRetries.WithLabelValues(mc.connectorType, mc.connectorName, operation).Inc()
}

// SetActiveConnections sets the active connection gauge.
func (mc *MetricsCollector) SetActiveConnections(count int) {
	connectorConnections.WithLabelValues(mc.connectorType, mc.connectorName).Set(float64(count))
}

// RecordDuration records into the general duration histogram. Missing
// labels default to "unknown" so the label set stays fixed.
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	operation := labels["operation"]
	if operation == "" {
		operation = name
	}
	generalDuration.WithLabelValues(operation, labelOr(labels, "component"), labelOr(labels, "status")).Observe(duration.Seconds())
}

// RecordGauge records into the general gauge, keyed by metric name
// and component.
func RecordGauge(name string, value float64, labels map[string]string) {
	generalGauge.WithLabelValues(name, labelOr(labels, "component")).Set(value)
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// PerformanceTracker accumulates throughput and error counts for one
// operation and mirrors them into Prometheus.
type PerformanceTracker struct {
	collector *MetricsCollector
	operation string
	started   time.Time

	records int64
	errs    int64
	retries int64
}

// NewPerformanceTracker creates a tracker for one operation.
func NewPerformanceTracker(collector *MetricsCollector, operation string) *PerformanceTracker {
	return &PerformanceTracker{
		collector: collector,
		operation: operation,
		started:   time.Now(),
	}
}

// RecordProcessed adds successfully processed records.
func (pt *PerformanceTracker) RecordProcessed(count int) {
	atomic.AddInt64(&pt.records, int64(count))
	pt.collector.RecordRecordsProcessed(pt.operation, count, "success")
}

// RecordError counts one error of the given type.
func (pt *PerformanceTracker) RecordError(errorType string) {
	atomic.AddInt64(&pt.errs, 1)
	pt.collector.RecordError(pt.operation, errorType)
}

// RecordRetry counts one retry.
func (pt *PerformanceTracker) RecordRetry() {
	atomic.AddInt64(&pt.retries, 1)
	pt.collector.RecordRetry(pt.operation)
}

// GetCurrentThroughput returns records per second since the tracker
// started and updates the throughput gauge.
func (pt *PerformanceTracker) GetCurrentThroughput() float64 {
	elapsed := time.Since(pt.started)
	if elapsed <= 0 {
		return 0
	}

	throughput := float64(atomic.LoadInt64(&pt.records)) / elapsed.Seconds()
	pt.collector.RecordThroughput(pt.operation, throughput)
	return throughput
}

// GetStats returns a snapshot of the tracker.
func (pt *PerformanceTracker) GetStats() PerformanceStats {
	elapsed := time.Since(pt.started)
	records := atomic.LoadInt64(&pt.records)
	errs := atomic.LoadInt64(&pt.errs)

	errorRate := 0.0
	if records > 0 {
		errorRate = float64(errs) / float64(records)
	}

	return PerformanceStats{
		Operation:        pt.operation,
		Duration:         elapsed,
		RecordsProcessed: records,
		Throughput:       perSecond(records, elapsed),
		Errors:           errs,
		Retries:          atomic.LoadInt64(&pt.retries),
		ErrorRate:        errorRate,
	}
}

// PerformanceStats is a point-in-time snapshot of a tracker.
type PerformanceStats struct {
	Operation        string
	Duration         time.Duration
	RecordsProcessed int64
	Throughput       float64
	Errors           int64
	Retries          int64
	ErrorRate        float64
}

// LogStats writes the snapshot to the given logger.
func (ps PerformanceStats) LogStats(l *zap.Logger) {
	l.Info("performance stats",
		zap.String("operation", ps.Operation),
		zap.Duration("duration", ps.Duration),
		zap.Int64("records_processed", ps.RecordsProcessed),
		zap.Float64("throughput_rps", ps.Throughput),
		zap.Int64("errors", ps.Errors),
		zap.Int64("retries", ps.Retries),
		zap.Float64("error_rate", ps.ErrorRate),
	)
}

// ConnectorMetrics bundles the collector, tracer, and logger for one
// connector.
type ConnectorMetrics struct {
	Collector *MetricsCollector
	Tracer    *ConnectorTracer
	Logger    *zap.Logger
}

// NewConnectorMetrics creates the bundle for a connector.
func NewConnectorMetrics(connectorType, connectorName string) *ConnectorMetrics {
	return &ConnectorMetrics{
		Collector: NewMetricsCollector(connectorType, connectorName),
		Tracer:    NewConnectorTracer(connectorType, connectorName),
		Logger: GetLogger().With(
			zap.String("connector_type", connectorType),
			zap.String("connector_name", connectorName),
		),
	}
}

// TrackOperation runs fn under a span and records its duration and
// outcome.
func (cm *ConnectorMetrics) TrackOperation(ctx context.Context, operation string, fn func() error) error {
	_, span := cm.Tracer.StartSpan(ctx, operation)
	defer span.End()

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	cm.Collector.RecordDuration(operation, duration, statusLabel(err))

	if err != nil {
		cm.Collector.RecordError(operation, "execution_error")
		span.SetAttribute("error", true)
		span.SetAttribute("error.message", err.Error())
		cm.Logger.Error("operation failed",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	cm.Logger.Debug("operation completed",
		zap.String("operation", operation),
		zap.Duration("duration", duration),
	)
	return nil
}

// PipelineMetrics counts records as they move through the extract,
// transform, and load stages of one pipeline run.
type PipelineMetrics struct {
	Collector *MetricsCollector
	Logger    *zap.Logger

	extracted   int64
	transformed int64
	loaded      int64
	errs        int64

	started    time.Time
	lastUpdate int64 // unix nanos
}

// NewPipelineMetrics creates a tracker for one pipeline.
func NewPipelineMetrics(pipelineName string) *PipelineMetrics {
	now := time.Now()
	return &PipelineMetrics{
		Collector:  NewMetricsCollector("pipeline", pipelineName),
		Logger:     GetLogger().With(zap.String("pipeline", pipelineName)),
		started:    now,
		lastUpdate: now.UnixNano(),
	}
}

// RecordExtracted counts one record read from the source.
func (pm *PipelineMetrics) RecordExtracted() {
	atomic.AddInt64(&pm.extracted, 1)
	pm.touch()
	pm.Collector.RecordRecordsProcessed("extract", 1, "success")
}

// RecordTransformed counts one record through the transform stage.
func (pm *PipelineMetrics) RecordTransformed() {
	atomic.AddInt64(&pm.transformed, 1)
	pm.touch()
	pm.Collector.RecordRecordsProcessed("transform", 1, "success")
}

// RecordsLoaded counts a batch written to the destination.
func (pm *PipelineMetrics) RecordsLoaded(count int) {
	atomic.AddInt64(&pm.loaded, int64(count))
	pm.touch()
	pm.Collector.RecordRecordsProcessed("load", count, "success")
	pm.Collector.RecordBatchSize("load", count)
}

// RecordError counts one pipeline error.
func (pm *PipelineMetrics) RecordError(operation, errorType string) {
	atomic.AddInt64(&pm.errs, 1)
	pm.touch()
	pm.Collector.RecordError(operation, errorType)
}

func (pm *PipelineMetrics) touch() {
	atomic.StoreInt64(&pm.lastUpdate, time.Now().UnixNano())
}

// GetStats returns a snapshot of the pipeline counters.
func (pm *PipelineMetrics) GetStats() map[string]interface{} {
	elapsed := time.Since(pm.started)
	loaded := atomic.LoadInt64(&pm.loaded)

	return map[string]interface{}{
		"records_extracted":   atomic.LoadInt64(&pm.extracted),
		"records_transformed": atomic.LoadInt64(&pm.transformed),
		"records_loaded":      loaded,
		"errors":              atomic.LoadInt64(&pm.errs),
		"elapsed_seconds":     elapsed.Seconds(),
		"throughput_rps":      perSecond(loaded, elapsed),
		"last_update":         time.Unix(0, atomic.LoadInt64(&pm.lastUpdate)),
	}
}

// perSecond returns n per second over elapsed, or 0 for a zero
// duration.
func perSecond(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// Push gateway loop. Started by Initialize when a gateway is
// configured, stopped by Shutdown after a final push.
var (
	pushMu   sync.Mutex
	pushStop chan struct{}
	pushDone chan struct{}
)

func startPusher(cfg MetricsConfig) {
	if cfg.PushGateway == "" {
		return
	}

	interval := cfg.PushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	pusher := push.New(cfg.PushGateway, cfg.Namespace).Gatherer(prometheus.DefaultGatherer)
	if cfg.Subsystem != "" {
		pusher = pusher.Grouping("subsystem", cfg.Subsystem)
	}

	pushMu.Lock()
	if pushStop != nil {
		pushMu.Unlock()
		return
	}
	pushStop = make(chan struct{})
	pushDone = make(chan struct{})
	stop, done := pushStop, pushDone
	pushMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pusher.Push(); err != nil {
					GetLogger().Warn("metrics push failed", zap.Error(err))
				}
			case <-stop:
				if err := pusher.Push(); err != nil {
					GetLogger().Warn("final metrics push failed", zap.Error(err))
				}
				return
			}
		}
	}()
}

func stopPusher() {
	pushMu.Lock()
	stop, done := pushStop, pushDone
	pushStop, pushDone = nil, nil
	pushMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
