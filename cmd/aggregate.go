package cmd

import (
	"context"

	"github.com/ethpandaops/footprint/pkg/aggregate"
	"github.com/ethpandaops/footprint/pkg/pipeline"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Report stored building counts per region and new buildings per year",
	Long: `Sum the feature counts of the stored regional layers over the configured year
range and list the size of every year's change layer. The store is only read.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApplication(cmd, func(ctx context.Context, app *pipeline.Application) error {
			report, err := app.Service.Aggregate(ctx)
			if err != nil {
				return err
			}

			cfg := app.Config().Report

			if format, _ := cmd.Flags().GetString("format"); format != "" {
				cfg.Format = aggregate.Format(format)
			}

			if output, _ := cmd.Flags().GetString("output"); output != "" {
				cfg.Output = output
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if cfg.Output == "" {
				return aggregate.Write(cmd.OutOrStdout(), cfg.Format, report)
			}

			if err := aggregate.WriteFile(cfg.Output, cfg.Format, report); err != nil {
				return err
			}

			logger.WithField("path", cfg.Output).Info("Report written")

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().String("format", "", "report format: table, json, yaml or csv (overrides report.format)")
	aggregateCmd.Flags().StringP("output", "o", "", "write the report to this file instead of stdout")
}
