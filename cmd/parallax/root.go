package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/logger"
)

var (
	settingsFile string
	settings     *config.Settings

	// catalogRoot overrides settings.CatalogRoot when set on the
	// command line.
	catalogRoot string
)

var rootCmd = &cobra.Command{
	Use:   "parallax",
	Short: "Parallax - connector catalog tooling and data sync runner",
	Long: `Parallax manages a monorepo of data connectors: it selects connectors
for CI runs, bumps versions with changelog entries, moves records between
sources and destinations, and talks to the hosted platform API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.LoadSettings(settingsFile)
		if err != nil {
			return err
		}

		return logger.Init(logger.Config{
			Level:    settings.LogLevel,
			Encoding: settings.LogFormat,
		})
	},
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "",
		"path to a parallax.yaml settings file (default: ./parallax.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&catalogRoot, "catalog-root", "",
		"repository root scanned for connector metadata (overrides settings)")
}

func resolvedCatalogRoot() string {
	if catalogRoot != "" {
		return catalogRoot
	}
	return settings.CatalogRoot
}
