// Package logger owns the process-wide structured logger. The first
// Init call decides the configuration; Get never returns nil, falling
// back to a production JSON logger when nothing initialized it.
package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// contextKey keeps logger context values collision-free.
type contextKey string

const (
	// ConnectorKey carries the connector name on a context.
	ConnectorKey contextKey = "connector"
	// StreamKey carries the stream name on a context.
	StreamKey contextKey = "stream"
	// JobIDKey carries the platform job ID on a context.
	JobIDKey contextKey = "job_id"
)

// Config controls how the global logger is built.
type Config struct {
	Level            string // debug, info, warn, error; empty means info
	Encoding         string // json or console; empty means json
	Development      bool
	OutputPaths      []string
	ErrorOutputPaths []string
}

var (
	mu     sync.Mutex
	global *zap.Logger
)

// Init builds the global logger from cfg. Once a logger exists, later
// calls are no-ops, so the first configuration sticks for the life of
// the process. A failed Init leaves the logger unset and can be
// retried with a corrected config.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return nil
	}

	l, err := build(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Get returns the global logger, building a default one on first use.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if global == nil {
		l, err := build(Config{})
		if err != nil {
			l, _ = zap.NewProduction()
		}
		global = l
	}
	return global
}

func build(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig(cfg.Development),
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}
	if len(zapCfg.OutputPaths) == 0 {
		zapCfg.OutputPaths = []string{"stdout"}
	}
	if len(zapCfg.ErrorOutputPaths) == 0 {
		zapCfg.ErrorOutputPaths = []string{"stderr"}
	}

	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		l = l.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return l, nil
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if development {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

// WithContext returns the global logger with any connector, stream,
// or job ID found on the context attached as fields.
func WithContext(ctx context.Context) *zap.Logger {
	fields := make([]zap.Field, 0, 3)
	if v, ok := ctx.Value(ConnectorKey).(string); ok {
		fields = append(fields, zap.String("connector", v))
	}
	if v, ok := ctx.Value(StreamKey).(string); ok {
		fields = append(fields, zap.String("stream", v))
	}
	if v, ok := ctx.Value(JobIDKey).(string); ok {
		fields = append(fields, zap.String("job_id", v))
	}

	if len(fields) == 0 {
		return Get()
	}
	return Get().With(fields...)
}

// With returns a child of the global logger with extra fields.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Package-level helpers that log through the global logger.

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

// Sync flushes buffered log entries. Sync errors on terminal streams
// are silenced; see uber-go/zap#328.
func Sync() error {
	mu.Lock()
	l := global
	mu.Unlock()

	if l == nil {
		return nil
	}
	err := l.Sync()
	if err == nil || isTerminalSyncError(err) {
		return nil
	}
	return err
}

func isTerminalSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "bad file descriptor") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "inappropriate ioctl")
}
