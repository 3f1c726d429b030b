package amazonads

import (
	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/connector/registry"
)

func init() {
	// Register Amazon Ads source connector in the global registry
	_ = registry.RegisterSource("amazon-ads", func(config *config.BaseConfig) (core.Source, error) {
		return NewAmazonAdsSource("amazon-ads", config)
	})
}
