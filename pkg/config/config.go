package config

import (
	"fmt"
	"runtime"
	"time"
)

// BaseConfig is the configuration every connector shares. Connector
// specific settings ride in Security.Credentials or in a wrapper
// struct that embeds BaseConfig with the yaml inline tag.
type BaseConfig struct {
	// Name identifies the connector instance.
	Name string `yaml:"name" json:"name"`
	// Type is "source" or "destination".
	Type string `yaml:"type" json:"type"`

	Performance   PerformanceConfig   `yaml:"performance" json:"performance"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Advanced      AdvancedConfig      `yaml:"advanced" json:"advanced"`
}

// PerformanceConfig sizes the data path.
type PerformanceConfig struct {
	// BatchSize is the number of records per destination batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// BufferSize sizes file write buffers, in bytes.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
	// Workers is the number of parallel transform workers.
	Workers int `yaml:"workers" json:"workers"`
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
	// PageSize is the page size requested from paginated APIs.
	PageSize int `yaml:"page_size" json:"page_size"`
}

// TimeoutConfig bounds outbound calls.
type TimeoutConfig struct {
	// Request caps one API exchange, body included.
	Request time.Duration `yaml:"request" json:"request"`
	// Connection caps connection establishment.
	Connection time.Duration `yaml:"connection" json:"connection"`
}

// ReliabilityConfig tunes the retry, rate limit, and health machinery
// the connector base builds during Initialize.
type ReliabilityConfig struct {
	// RetryAttempts is the total number of tries for a failed
	// operation.
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the delay before the first retry.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMultiplier grows the delay between consecutive retries.
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
	// MaxRetryDelay caps the grown delay.
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// CircuitBreaker guards operations with a circuit breaker.
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RateLimitPerSec throttles operations; 0 means unlimited.
	RateLimitPerSec int `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// HealthCheck runs periodic background health probes.
	HealthCheck bool `yaml:"health_check" json:"health_check"`
}

// SecurityConfig carries the connector's credential material.
type SecurityConfig struct {
	// Credentials holds connector specific key-value settings. Use
	// ${VAR} references and let Load substitute from the environment
	// rather than committing secrets.
	Credentials map[string]string `yaml:"credentials" json:"credentials"`
}

// ObservabilityConfig adjusts per-connector logging and reporting.
type ObservabilityConfig struct {
	// EnableLogging set to false silences the connector's logger.
	EnableLogging bool `yaml:"enable_logging" json:"enable_logging"`
	// LogLevel raises the connector's minimum log level
	// (debug, info, warn, error). Empty keeps the global level.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsInterval is how often progress and health are reported.
	MetricsInterval time.Duration `yaml:"metrics_interval" json:"metrics_interval"`
}

// AdvancedConfig holds optional output features.
type AdvancedConfig struct {
	// EnableCompression compresses destination output.
	EnableCompression bool `yaml:"enable_compression" json:"enable_compression"`
	// CompressionAlgorithm is gzip, zstd, or lz4.
	CompressionAlgorithm string `yaml:"compression_algorithm" json:"compression_algorithm"`
	// CompressionLevel trades ratio against speed (1-9).
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
}

// NewBaseConfig returns a config with defaults suited to API-bound
// connectors. Callers override individual fields before Initialize.
func NewBaseConfig(name, connectorType string) *BaseConfig {
	return &BaseConfig{
		Name: name,
		Type: connectorType,
		Performance: PerformanceConfig{
			BatchSize:     1000,
			BufferSize:    10000,
			Workers:       runtime.NumCPU(),
			FlushInterval: 10 * time.Second,
			PageSize:      100,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RetryAttempts:   3,
			RetryDelay:      time.Second,
			RetryMultiplier: 2.0,
			MaxRetryDelay:   60 * time.Second,
			CircuitBreaker:  true,
			HealthCheck:     true,
		},
		Security: SecurityConfig{
			Credentials: make(map[string]string),
		},
		Observability: ObservabilityConfig{
			EnableLogging:   true,
			LogLevel:        "",
			MetricsInterval: 30 * time.Second,
		},
		Advanced: AdvancedConfig{
			CompressionAlgorithm: "gzip",
			CompressionLevel:     6,
		},
	}
}

// Validate rejects configurations the connector base cannot run with.
// Connectors call it before extracting their own settings.
func (bc *BaseConfig) Validate() error {
	if bc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if bc.Type == "" {
		return fmt.Errorf("type is required")
	}
	if bc.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if bc.Performance.BufferSize < 0 {
		return fmt.Errorf("buffer_size cannot be negative")
	}
	if bc.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}
	if bc.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("rate_limit_per_sec cannot be negative")
	}
	return nil
}

// GetPageSize returns the configured page size, or the default when
// unset.
func (p *PerformanceConfig) GetPageSize() int {
	if p.PageSize <= 0 {
		return 100
	}
	return p.PageSize
}
