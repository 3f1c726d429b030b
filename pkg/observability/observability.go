// Package observability wires tracing, Prometheus metrics, and
// structured logging together for pipeline runs and connector
// operations. Initialize is optional: spans created before it runs go
// through the global otel provider, which discards them.
package observability

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parallaxworks/parallax/pkg/logger"
)

var (
	initOnce sync.Once

	tracer trace.Tracer
	meter  metric.Meter
	log    *zap.Logger
)

// TracingConfig controls the otel tracer provider.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string // only "stdout" is supported
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// MetricsConfig controls the Prometheus side. When PushGateway is set
// the default registry is pushed there on a fixed interval.
type MetricsConfig struct {
	Namespace    string
	Subsystem    string
	PushGateway  string
	PushInterval time.Duration
}

// LoggingConfig controls the process logger, built through pkg/logger
// so the whole binary shares one logger.
type LoggingConfig struct {
	Level       zapcore.Level
	Format      string // json or console
	OutputPaths []string
	ErrorPaths  []string
	Development bool
}

// ObservabilityConfig bundles the three concerns.
type ObservabilityConfig struct {
	Tracing TracingConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

// DefaultConfig returns the configuration used when nothing overrides
// it: stdout traces at 10% sampling, no metrics push, JSON logs.
func DefaultConfig() ObservabilityConfig {
	env := envOr("ENVIRONMENT", "development")
	return ObservabilityConfig{
		Tracing: TracingConfig{
			ServiceName:    "parallax",
			ServiceVersion: "1.0.0",
			Environment:    env,
			SamplingRate:   0.1,
			ExporterType:   envOr("TRACING_EXPORTER", "stdout"),
			BatchTimeout:   5 * time.Second,
			MaxExportBatch: 512,
			MaxQueueSize:   2048,
		},
		Metrics: MetricsConfig{
			Namespace:    "parallax",
			Subsystem:    "core",
			PushGateway:  os.Getenv("PROMETHEUS_PUSHGATEWAY"),
			PushInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       logLevel(envOr("LOG_LEVEL", "info")),
			Format:      envOr("LOG_FORMAT", "json"),
			OutputPaths: []string{"stdout"},
			ErrorPaths:  []string{"stderr"},
			Development: env == "development",
		},
	}
}

// Initialize sets up tracing, metrics, and logging. Only the first
// call has any effect.
func Initialize(config ObservabilityConfig) error {
	var err error
	initOnce.Do(func() {
		if err = setupTracing(config.Tracing); err != nil {
			return
		}
		if err = setupLogging(config.Logging); err != nil {
			return
		}

		meter = otel.Meter(config.Metrics.Namespace)

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		startPusher(config.Metrics)
	})
	return err
}

func setupTracing(cfg TracingConfig) error {
	if cfg.ExporterType != "" && cfg.ExporterType != "stdout" {
		return fmt.Errorf("unsupported trace exporter %q", cfg.ExporterType)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRate)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatch),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(cfg.ServiceName)
	return nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// setupLogging routes the config through pkg/logger, then mirrors the
// resulting logger into the zap globals.
func setupLogging(cfg LoggingConfig) error {
	err := logger.Init(logger.Config{
		Level:            cfg.Level.String(),
		Encoding:         cfg.Format,
		Development:      cfg.Development,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorPaths,
	})
	if err != nil {
		return err
	}

	log = logger.Get()
	zap.ReplaceGlobals(log)
	return nil
}

// GetTracer returns the tracer installed by Initialize, or nil before
// it runs.
func GetTracer() trace.Tracer {
	return tracer
}

// GetMeter returns the meter installed by Initialize, or nil before
// it runs.
func GetMeter() metric.Meter {
	return meter
}

// GetLogger returns the logger installed by Initialize, falling back
// to the zap global.
func GetLogger() *zap.Logger {
	if log == nil {
		return zap.L()
	}
	return log
}

// Shutdown flushes buffered spans, pushes a final metrics snapshot,
// and syncs the logger.
func Shutdown(ctx context.Context) error {
	var errs []error

	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}

	stopPusher()

	if err := logger.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logLevel(s string) zapcore.Level {
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
