// Package cmd contains the CLI commands for footprint
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/footprint/pkg/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile     string
	logger      *logrus.Logger
	fromYear    int
	toYear      int
	regionCodes []string
	concurrency int
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "footprint",
	Short: "Building footprint ingestion and yearly change feed for BDOT10k",
	Long: `footprint downloads the yearly BDOT10k archives of a set of Polish powiats,
imports their building layers into PostGIS and derives, for every year, the
footprints that did not exist the year before.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, fatal, panic); overrides the config file")
	rootCmd.PersistentFlags().IntVar(&fromYear, "from", 0, "first year to process (overrides years.from)")
	rootCmd.PersistentFlags().IntVar(&toYear, "to", 0, "last year to process (overrides years.to)")
	rootCmd.PersistentFlags().StringSliceVar(&regionCodes, "region", nil, "restrict to these region codes (repeatable)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "regions processed in parallel within a year (overrides concurrency)")

	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "./config.yaml"
	}
}

// loadConfig reads the config file, applies command line overrides and sets the
// log level
func loadConfig(cmd *cobra.Command) (*pipeline.Config, error) {
	cfg, err := pipeline.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if fromYear != 0 {
		cfg.Years.From = fromYear
	}

	if toYear != 0 {
		cfg.Years.To = toYear
	}

	if concurrency != 0 {
		cfg.Concurrency = concurrency
	}

	filtered, err := cfg.Regions.Filter(regionCodes)
	if err != nil {
		return nil, err
	}

	cfg.Regions = filtered

	if logLevel, _ := cmd.Flags().GetString("log-level"); logLevel != "" {
		cfg.Logging = logLevel
	}

	// Overrides are checked the same way the file is.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Logging)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(level)

	return cfg, nil
}

// withApplication loads the configuration, connects and hands the application to
// fn with a context cancelled on SIGINT or SIGTERM
func withApplication(cmd *cobra.Command, fn func(ctx context.Context, app *pipeline.Application) error) error {
	// Silence usage on error
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := pipeline.NewApplication(ctx, logger, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close application")
		}
	}()

	return fn(ctx, app)
}
