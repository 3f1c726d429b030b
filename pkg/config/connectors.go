// Connector-specific configurations that embed BaseConfig
package config

// AmazonAdsSourceConfig contains configuration for the Amazon Ads API
// source connector (Sponsored Products)
type AmazonAdsSourceConfig struct {
	BaseConfig `yaml:",inline" json:",inline"`

	// Login with Amazon (LWA) OAuth configuration
	ClientID     string `yaml:"client_id" json:"client_id" required:"true"`
	ClientSecret string `yaml:"client_secret" json:"client_secret" required:"true"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token" required:"true"`

	// ProfileID scopes all requests to one advertising profile
	ProfileID string `yaml:"profile_id" json:"profile_id" required:"true"`

	// Region selects the API host (NA, EU, FE)
	Region string `yaml:"region" json:"region" default:"NA"`
	// Endpoint overrides the region-derived API host (testing)
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// AuthURL overrides the LWA token endpoint (testing)
	AuthURL string `yaml:"auth_url" json:"auth_url"`

	// Streams restricts the sync to the named streams (empty = all)
	Streams []string `yaml:"streams" json:"streams"`

	// StateFilter restricts list requests to entities in these states
	StateFilter []string `yaml:"state_filter" json:"state_filter"`

	// MaxPages caps pagination per stream (0 = no limit)
	MaxPages int `yaml:"max_pages" json:"max_pages" default:"0"`
}

// JSONLDestinationConfig contains configuration for the JSONL file
// destination connector
type JSONLDestinationConfig struct {
	BaseConfig `yaml:",inline" json:",inline"`

	// OutputPath is the file to write (or directory with FilePerStream)
	OutputPath string `yaml:"output_path" json:"output_path" required:"true"`
	// FilePerStream writes one file per stream under OutputPath
	FilePerStream bool `yaml:"file_per_stream" json:"file_per_stream" default:"false"`
	// Format selects the output layout (lines or array)
	Format string `yaml:"format" json:"format" default:"lines"`
	// CreateDirs creates missing parent directories
	CreateDirs bool `yaml:"create_dirs" json:"create_dirs" default:"true"`
	// Pretty enables indented output (array format only)
	Pretty bool `yaml:"pretty" json:"pretty" default:"false"`
}
