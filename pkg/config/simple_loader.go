package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envRef matches ${VAR} references in raw config bytes.
var envRef = regexp.MustCompile(`\$\{(\w+)\}`)

// Load reads a YAML config file into out, expanding ${VAR} references from
// the environment first. Unset variables expand to the empty string.
func Load(path string, out interface{}) error {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := envRef.ReplaceAllStringFunc(string(raw), func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})

	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// Save writes a config value to a YAML file.
func Save(path string, cfg interface{}) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
