package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds tool-level settings for the parallax CLI. They are
// resolved from defaults, an optional config file, and PARALLAX_*
// environment variables, in increasing order of precedence.
type Settings struct {
	// CatalogRoot is the repository root scanned for connector metadata
	CatalogRoot string `mapstructure:"catalog_root"`
	// LogLevel sets CLI logging verbosity
	LogLevel string `mapstructure:"log_level"`
	// LogFormat selects json or console output
	LogFormat string `mapstructure:"log_format"`

	Report   ReportSettings   `mapstructure:"report"`
	Platform PlatformSettings `mapstructure:"platform"`
}

// ReportSettings configures run report uploads
type ReportSettings struct {
	// Bucket is the GCS bucket for run reports
	Bucket string `mapstructure:"bucket"`
	// Prefix is the object key prefix inside the bucket
	Prefix string `mapstructure:"prefix"`
}

// PlatformSettings configures the hosted platform API client
type PlatformSettings struct {
	// BaseURL is the platform API root
	BaseURL string `mapstructure:"base_url"`
	// APIKey authenticates platform requests
	APIKey string `mapstructure:"api_key"`
	// PollInterval controls job status polling
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoadSettings resolves CLI settings. When path is empty, a parallax.yaml
// in the working directory is used if present; a missing config file is
// not an error.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()

	v.SetDefault("catalog_root", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("report.prefix", "run-reports")
	v.SetDefault("platform.base_url", "https://cloud.parallaxworks.io/api/public/v1")
	v.SetDefault("platform.poll_interval", 2*time.Second)

	v.SetEnvPrefix("PARALLAX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	} else {
		v.SetConfigName("parallax")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read settings file: %w", err)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return &settings, nil
}
