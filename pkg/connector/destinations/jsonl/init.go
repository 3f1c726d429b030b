package jsonl

import (
	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/connector/registry"
)

// Register JSONL destination connector in the global registry
func init() {
	_ = registry.RegisterDestination("jsonl", func(config *config.BaseConfig) (core.Destination, error) {
		return NewJSONLDestination("jsonl", config)
	})
}
