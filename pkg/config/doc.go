// Package config carries the configuration surface for Parallax: the
// BaseConfig every connector consumes, YAML loading with environment
// variable substitution, and the CLI-level Settings resolver.
//
// BaseConfig groups its knobs into sections (Performance, Timeouts,
// Reliability, Security, Observability, Advanced) so every connector
// reads the same shape. Connector specific fields are added by
// embedding, as AmazonAdsSourceConfig and JSONLDestinationConfig do:
//
//	type AmazonAdsSourceConfig struct {
//		BaseConfig `yaml:",inline" json:",inline"`
//
//		ClientID     string `yaml:"client_id" json:"client_id" required:"true"`
//		ClientSecret string `yaml:"client_secret" json:"client_secret" required:"true"`
//		// ...
//	}
//
// Load unmarshals a YAML file into such a struct, first substituting
// ${VAR} references from the process environment:
//
//	name: source-amazon-ads
//	type: source
//	security:
//	  credentials:
//	    client_id: ${AMAZON_ADS_CLIENT_ID}
//	    client_secret: ${AMAZON_ADS_CLIENT_SECRET}
//
//	var cfg config.AmazonAdsSourceConfig
//	if err := config.Load("source.yaml", &cfg); err != nil {
//		log.Fatal(err)
//	}
//
// NewBaseConfig fills a BaseConfig with working defaults for
// programmatic construction, and Validate catches the mistakes worth
// catching before a pipeline spins up.
//
// Settings is independent of BaseConfig: it resolves tool-level options
// (catalog root, report prefix, platform poll interval, log level) by
// layering defaults, an optional parallax.yaml, and PARALLAX_*
// environment variables, in that order.
package config
