package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/internal/pipeline"
	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/registry"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/logger"
)

var (
	syncSourceName      string
	syncDestinationName string
	syncConfigFile      string
	syncBatchSize       int
	syncWorkers         int
	syncFlushInterval   time.Duration
	syncTimeout         time.Duration
)

// syncFileConfig is the layout of the sync config file: one section per
// connector, either of which may be omitted.
type syncFileConfig struct {
	Source      *config.BaseConfig `yaml:"source"`
	Destination *config.BaseConfig `yaml:"destination"`
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync between a source and a destination",
	Long: `Sync streams records from a registered source connector into a
registered destination connector. Connector settings come from the
YAML config file's source and destination sections; ${VAR} references
are substituted from the environment.

Example:
  parallax sync --source amazon-ads --destination jsonl --config sync.yaml`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, syncTimeout)
		defer cancel()
	}

	var fileConfig syncFileConfig
	if syncConfigFile != "" {
		if err := config.Load(syncConfigFile, &fileConfig); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to load sync config")
		}
	}

	sourceConfig := fileConfig.Source
	if sourceConfig == nil {
		sourceConfig = config.NewBaseConfig(syncSourceName, syncSourceName)
	}
	sourceConfig.Type = syncSourceName
	if sourceConfig.Name == "" {
		sourceConfig.Name = syncSourceName
	}

	destConfig := fileConfig.Destination
	if destConfig == nil {
		destConfig = config.NewBaseConfig(syncDestinationName, syncDestinationName)
	}
	destConfig.Type = syncDestinationName
	if destConfig.Name == "" {
		destConfig.Name = syncDestinationName
	}

	source, err := registry.CreateSource(syncSourceName, sourceConfig)
	if err != nil {
		return err
	}
	destination, err := registry.CreateDestination(syncDestinationName, destConfig)
	if err != nil {
		return err
	}

	log := logger.Get().With(
		zap.String("component", "parallax-cli"),
		zap.String("source", syncSourceName),
		zap.String("destination", syncDestinationName))

	if err := source.Initialize(ctx, sourceConfig); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize source")
	}
	if err := destination.Initialize(ctx, destConfig); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize destination")
	}

	pipelineConfig := pipeline.ConfigFromBase(sourceConfig)
	pipelineConfig.SourceName = syncSourceName
	pipelineConfig.DestinationName = syncDestinationName
	if syncBatchSize > 0 {
		pipelineConfig.BatchSize = syncBatchSize
	}
	if syncWorkers > 0 {
		pipelineConfig.WorkerCount = syncWorkers
	}
	if syncFlushInterval > 0 {
		pipelineConfig.FlushInterval = syncFlushInterval
	}

	runErr := pipeline.New(source, destination, pipelineConfig, log).Run(ctx)

	if err := source.Close(ctx); err != nil {
		log.Warn("failed to close source", zap.Error(err))
	}
	if err := destination.Close(ctx); err != nil {
		log.Warn("failed to close destination", zap.Error(err))
	}

	return runErr
}

func init() {
	syncCmd.Flags().StringVarP(&syncSourceName, "source", "s", "", "source connector name (required)")
	syncCmd.Flags().StringVarP(&syncDestinationName, "destination", "d", "", "destination connector name (required)")
	_ = syncCmd.MarkFlagRequired("source")
	_ = syncCmd.MarkFlagRequired("destination")

	syncCmd.Flags().StringVar(&syncConfigFile, "config", "", "path to the sync configuration YAML file")
	syncCmd.Flags().IntVar(&syncBatchSize, "batch-size", 0, "records per destination batch (overrides config)")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0, "parallel transform workers (overrides config)")
	syncCmd.Flags().DurationVar(&syncFlushInterval, "flush-interval", 0, "max wait before a partial batch flushes")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 30*time.Minute, "overall sync timeout")

	rootCmd.AddCommand(syncCmd)
}
