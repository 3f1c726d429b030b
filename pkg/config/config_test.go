package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestNewBaseConfigDefaults(t *testing.T) {
	cfg := NewBaseConfig("source-amazon-ads", "source")

	assert.Equal(t, "source-amazon-ads", cfg.Name)
	assert.Equal(t, "source", cfg.Type)
	assert.Equal(t, 1000, cfg.Performance.BatchSize)
	assert.Equal(t, 100, cfg.Performance.PageSize)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connection)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
	assert.True(t, cfg.Reliability.CircuitBreaker)
	assert.True(t, cfg.Observability.EnableLogging)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BaseConfig)
		wantErr string
	}{
		{"missing name", func(c *BaseConfig) { c.Name = "" }, "name is required"},
		{"missing type", func(c *BaseConfig) { c.Type = "" }, "type is required"},
		{"zero batch size", func(c *BaseConfig) { c.Performance.BatchSize = 0 }, "batch_size must be positive"},
		{"negative retries", func(c *BaseConfig) { c.Reliability.RetryAttempts = -1 }, "retry_attempts cannot be negative"},
		{"negative rate limit", func(c *BaseConfig) { c.Reliability.RateLimitPerSec = -5 }, "rate_limit_per_sec cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewBaseConfig("test", "source")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_ADS_CLIENT_ID", "amzn1.application-oa2-client.test")
	t.Setenv("TEST_ADS_PROFILE", "12345")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
name: source-amazon-ads
type: source
client_id: ${TEST_ADS_CLIENT_ID}
client_secret: shhh
refresh_token: token
profile_id: "${TEST_ADS_PROFILE}"
region: EU
streams:
  - campaigns
  - ad_groups
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var cfg AmazonAdsSourceConfig
	require.NoError(t, Load(path, &cfg))

	assert.Equal(t, "source-amazon-ads", cfg.Name)
	assert.Equal(t, "amzn1.application-oa2-client.test", cfg.ClientID)
	assert.Equal(t, "12345", cfg.ProfileID)
	assert.Equal(t, "EU", cfg.Region)
	assert.Equal(t, []string{"campaigns", "ad_groups"}, cfg.Streams)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg BaseConfig
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := NewBaseConfig("destination-jsonl", "destination")
	cfg.Performance.BatchSize = 250
	require.NoError(t, Save(path, cfg))

	var loaded BaseConfig
	require.NoError(t, Load(path, &loaded))
	assert.Equal(t, "destination-jsonl", loaded.Name)
	assert.Equal(t, 250, loaded.Performance.BatchSize)
}

func TestLoadSettingsDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	settings, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, ".", settings.CatalogRoot)
	assert.Equal(t, "info", settings.LogLevel)
	assert.Equal(t, "run-reports", settings.Report.Prefix)
	assert.Equal(t, 2*time.Second, settings.Platform.PollInterval)
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parallax.yaml")
	content := `
catalog_root: /repo
log_level: debug
report:
  bucket: ci-reports
  prefix: nightly
platform:
  base_url: https://platform.test/api
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/repo", settings.CatalogRoot)
	assert.Equal(t, "debug", settings.LogLevel)
	assert.Equal(t, "ci-reports", settings.Report.Bucket)
	assert.Equal(t, "nightly", settings.Report.Prefix)
	assert.Equal(t, "https://platform.test/api", settings.Platform.BaseURL)
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PARALLAX_REPORT_BUCKET", "env-bucket")
	t.Setenv("PARALLAX_LOG_LEVEL", "warn")

	settings, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, "env-bucket", settings.Report.Bucket)
	assert.Equal(t, "warn", settings.LogLevel)
}
