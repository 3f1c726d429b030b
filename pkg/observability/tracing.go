package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an otel span with its start time and batched attributes,
// so callers can set attributes without touching the otel API.
type Span struct {
	span    trace.Span
	name    string
	started time.Time
	attrs   []attribute.KeyValue
}

// NewSpan starts a span under the installed tracer. Before Initialize
// runs it falls back to the global otel provider, which discards
// spans.
func NewSpan(ctx context.Context, name string) (context.Context, *Span) {
	t := tracer
	if t == nil {
		t = otel.Tracer("parallax")
	}
	ctx, s := t.Start(ctx, name)
	return ctx, &Span{span: s, name: name, started: time.Now()}
}

// SetAttribute batches an attribute; it is applied when the span
// ends.
func (s *Span) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.attrs = append(s.attrs, attribute.String(key, v))
	case bool:
		s.attrs = append(s.attrs, attribute.Bool(key, v))
	case int:
		s.attrs = append(s.attrs, attribute.Int(key, v))
	case int64:
		s.attrs = append(s.attrs, attribute.Int64(key, v))
	case float64:
		s.attrs = append(s.attrs, attribute.Float64(key, v))
	default:
		s.attrs = append(s.attrs, attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// AddEvent records an event on the span immediately.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status.
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End applies the batched attributes, records the span duration
// metric, and ends the span. The metric is labelled by span name
// rather than span ID to keep cardinality bounded.
func (s *Span) End() {
	if len(s.attrs) > 0 {
		s.span.SetAttributes(s.attrs...)
	}

	RecordDuration("span_duration", time.Since(s.started), map[string]string{
		"operation": s.name,
		"component": "tracing",
	})

	s.span.End()
}

// ConnectorTracer names spans after a connector so traces from
// different connectors stay distinguishable.
type ConnectorTracer struct {
	connectorType string
	connectorName string
}

// NewConnectorTracer creates a tracer scoped to one connector.
func NewConnectorTracer(connectorType, connectorName string) *ConnectorTracer {
	return &ConnectorTracer{
		connectorType: connectorType,
		connectorName: connectorName,
	}
}

// StartSpan starts a span named type.name.operation with the
// connector identity attached.
func (ct *ConnectorTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, ct.connectorType+"."+ct.connectorName+"."+operation)
	span.SetAttribute("connector.type", ct.connectorType)
	span.SetAttribute("connector.name", ct.connectorName)
	span.SetAttribute("connector.operation", operation)
	return ctx, span
}

// TraceRecord runs fn under a span covering a single record.
func (ct *ConnectorTracer) TraceRecord(ctx context.Context, recordID, operation string, fn func() error) error {
	_, span := ct.StartSpan(ctx, operation)
	defer span.End()

	span.SetAttribute("record.id", recordID)

	start := time.Now()
	err := fn()

	RecordDuration("record_processing_duration", time.Since(start), ct.labels(operation, statusLabel(err)))
	finishSpan(span, err)
	return err
}

// TraceBatch runs fn under a span covering a whole batch and records
// the batch throughput.
func (ct *ConnectorTracer) TraceBatch(ctx context.Context, batchSize int, operation string, fn func() error) error {
	_, span := ct.StartSpan(ctx, operation)
	defer span.End()

	span.SetAttribute("batch.size", batchSize)

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	RecordDuration("batch_processing_duration", elapsed, ct.labels(operation, statusLabel(err)))
	if err == nil && elapsed > 0 {
		throughput := float64(batchSize) / elapsed.Seconds()
		RecordGauge("batch_throughput", throughput, map[string]string{
			"component": ct.connectorName,
		})
		span.SetAttribute("batch.throughput", throughput)
	}

	finishSpan(span, err)
	return err
}

func (ct *ConnectorTracer) labels(operation, status string) map[string]string {
	return map[string]string{
		"operation": operation,
		"component": ct.connectorType + "." + ct.connectorName,
		"status":    status,
	}
}

func finishSpan(span *Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
		span.SetAttribute("error.message", err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// DistributedTracer carries trace context across process boundaries,
// e.g. into platform API request headers. It always uses the current
// global propagator, so it is safe to construct before Initialize.
type DistributedTracer struct{}

// NewDistributedTracer creates a distributed tracer.
func NewDistributedTracer() *DistributedTracer {
	return &DistributedTracer{}
}

// InjectContext returns header values carrying the trace context of
// ctx, suitable for attaching to an outgoing request.
func (dt *DistributedTracer) InjectContext(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// ExtractContext returns ctx extended with any trace context found in
// the headers.
func (dt *DistributedTracer) ExtractContext(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
