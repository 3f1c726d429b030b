package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// swap installs an observer core as the global logger and restores
// the previous logger when the test ends.
func swap(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	mu.Lock()
	prev := global
	global = zap.New(core)
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		global = prev
		mu.Unlock()
	})
	return logs
}

// Runs first: the package state must still be uninitialized here.
func TestInitFirstConfigWins(t *testing.T) {
	err := Init(Config{Level: "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	// A failed Init leaves the logger unset, so a corrected config
	// still takes effect.
	require.NoError(t, Init(Config{Level: "debug", Encoding: "console", Development: true}))
	first := Get()
	require.NotNil(t, first)

	// Later calls keep the first configuration.
	require.NoError(t, Init(Config{Level: "error"}))
	assert.Same(t, first, Get())
}

func TestWithContextFields(t *testing.T) {
	logs := swap(t)

	ctx := context.WithValue(context.Background(), ConnectorKey, "source-amazon-ads")
	ctx = context.WithValue(ctx, JobIDKey, "job-42")

	WithContext(ctx).Info("polling job status")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "source-amazon-ads", fields["connector"])
	assert.Equal(t, "job-42", fields["job_id"])
	assert.NotContains(t, fields, "stream")
}

func TestWithContextWithoutValues(t *testing.T) {
	logs := swap(t)

	WithContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Context)
}

func TestPackageHelpers(t *testing.T) {
	logs := swap(t)

	Debug("d")
	Info("i", zap.Int("records", 10))
	Warn("w")
	Error("e")
	With(zap.String("component", "test")).Info("child")

	entries := logs.All()
	require.Len(t, entries, 5)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(10), entries[1].ContextMap()["records"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "test", entries[4].ContextMap()["component"])
}

func TestSync(t *testing.T) {
	swap(t)
	assert.NoError(t, Sync())
}
