package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// StructuredLogger is a connector-scoped logger with helpers for
// attaching trace context and operation lifecycles. The embedded
// logger carries the connector identity on every entry.
type StructuredLogger struct {
	*zap.Logger
	connectorType string
	connectorName string
}

// NewStructuredLogger creates a logger scoped to one connector.
func NewStructuredLogger(connectorType, connectorName string) *StructuredLogger {
	return &StructuredLogger{
		Logger: GetLogger().With(
			zap.String("connector_type", connectorType),
			zap.String("connector_name", connectorName),
		),
		connectorType: connectorType,
		connectorName: connectorName,
	}
}

// WithContext attaches the trace and span IDs from ctx when it
// carries an active span.
func (sl *StructuredLogger) WithContext(ctx context.Context) *ContextLogger {
	l := sl.Logger
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return &ContextLogger{Logger: l, ctx: ctx}
}

// WithOperation returns a logger for one named operation.
func (sl *StructuredLogger) WithOperation(operation string) *OperationLogger {
	return newOperationLogger(sl.Logger, operation)
}

// ContextLogger is a connector logger bound to a request context.
type ContextLogger struct {
	*zap.Logger
	ctx context.Context
}

// WithOperation returns a logger for one named operation.
func (cl *ContextLogger) WithOperation(operation string) *OperationLogger {
	return newOperationLogger(cl.Logger, operation)
}

// OperationLogger logs the lifecycle of a single operation with its
// elapsed time attached.
type OperationLogger struct {
	*zap.Logger
	operation string
	started   time.Time
}

func newOperationLogger(l *zap.Logger, operation string) *OperationLogger {
	return &OperationLogger{
		Logger:    l.With(zap.String("operation", operation)),
		operation: operation,
		started:   time.Now(),
	}
}

// LogStart marks the beginning of the operation.
func (ol *OperationLogger) LogStart(msg string, fields ...zap.Field) {
	ol.Info(msg, append(fields, zap.String("phase", "start"))...)
}

// LogProgress reports progress as a fraction in [0, 1].
func (ol *OperationLogger) LogProgress(msg string, progress float64, fields ...zap.Field) {
	ol.Info(msg, append(fields,
		zap.String("phase", "progress"),
		zap.Float64("progress_percent", progress*100),
		zap.Duration("elapsed", time.Since(ol.started)),
	)...)
}

// LogComplete marks the operation finished.
func (ol *OperationLogger) LogComplete(msg string, fields ...zap.Field) {
	ol.Info(msg, append(fields,
		zap.String("phase", "complete"),
		zap.Duration("total_duration", time.Since(ol.started)),
	)...)
}

// LogError marks the operation failed.
func (ol *OperationLogger) LogError(msg string, err error, fields ...zap.Field) {
	ol.Error(msg, append(fields,
		zap.String("phase", "error"),
		zap.Duration("duration_before_error", time.Since(ol.started)),
		zap.Error(err),
	)...)
}

// RecordMetrics accumulates record counts for one operation and logs
// progress at a fixed interval. It is not safe for concurrent use.
type RecordMetrics struct {
	logger   *OperationLogger
	records  int64
	errs     int64
	bytes    int64
	started  time.Time
	lastLog  time.Time
	interval time.Duration
}

// NewRecordMetrics creates a tracker logging through op. Progress is
// logged every 30 seconds by default.
func NewRecordMetrics(op *OperationLogger) *RecordMetrics {
	now := time.Now()
	return &RecordMetrics{
		logger:   op,
		started:  now,
		lastLog:  now,
		interval: 30 * time.Second,
	}
}

// SetLogInterval overrides the progress logging interval.
func (rm *RecordMetrics) SetLogInterval(interval time.Duration) {
	rm.interval = interval
}

// RecordProcessed adds processed records and logs progress when the
// interval has elapsed.
func (rm *RecordMetrics) RecordProcessed(count int, bytes int64) {
	rm.records += int64(count)
	rm.bytes += bytes

	if time.Since(rm.lastLog) >= rm.interval {
		rm.LogProgress()
		rm.lastLog = time.Now()
	}
}

// RecordError counts one failed record.
func (rm *RecordMetrics) RecordError() {
	rm.errs++
}

// LogProgress logs the running totals.
func (rm *RecordMetrics) LogProgress() {
	elapsed := time.Since(rm.started)
	rm.logger.Info("processing progress",
		zap.Int64("records_processed", rm.records),
		zap.Int64("errors", rm.errs),
		zap.Int64("bytes_processed", rm.bytes),
		zap.Float64("records_per_second", perSecond(rm.records, elapsed)),
		zap.Float64("bytes_per_second", perSecond(rm.bytes, elapsed)),
		zap.Duration("elapsed", elapsed),
	)
}

// LogFinal logs the end-of-run totals.
func (rm *RecordMetrics) LogFinal() {
	elapsed := time.Since(rm.started)

	errorRate := 0.0
	if rm.records > 0 {
		errorRate = float64(rm.errs) / float64(rm.records) * 100
	}

	rm.logger.LogComplete("processing completed",
		zap.Int64("total_records", rm.records),
		zap.Int64("total_errors", rm.errs),
		zap.Int64("total_bytes", rm.bytes),
		zap.Float64("avg_records_per_second", perSecond(rm.records, elapsed)),
		zap.Float64("avg_bytes_per_second", perSecond(rm.bytes, elapsed)),
		zap.Float64("error_rate_percent", errorRate),
		zap.Duration("total_duration", elapsed),
	)
}
