package cmd

import (
	"context"

	"github.com/ethpandaops/footprint/pkg/pipeline"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the pipeline on a schedule",
	Long: `Keep running and re-run the pipeline whenever watch.schedule is due, serving
Prometheus metrics and an optional health check. With Redis configured, several
watchers sharing a prefix elect one leader and the last run time survives restarts.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApplication(cmd, func(ctx context.Context, app *pipeline.Application) error {
			logger.WithField("schedule", app.Config().Watch.Schedule).Info("Watching for scheduled runs")

			return app.Watch(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
