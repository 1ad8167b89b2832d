package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethpandaops/footprint/pkg/ledger"
	"github.com/ethpandaops/footprint/pkg/redis"
	"github.com/spf13/cobra"
)

// ErrLedgerDisabled is returned by status when no Redis ledger is configured
var ErrLedgerDisabled = errors.New("status needs redis.address to be configured")

//nolint:gochecknoglobals // Cobra commands are typically global
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and the last outcome of every unit",
	Long: `Read the run ledger kept in Redis: the most recent run summaries and, per year,
the last recorded outcome of every region. The geospatial store is not contacted.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Int("runs", 5, "number of recent runs to show")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if !cfg.Redis.Enabled() {
		return ErrLedgerDisabled
	}

	client, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}

	led := ledger.NewRedis(logger, client, cfg.Redis.Prefix)
	defer func() {
		if closeErr := led.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close ledger")
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	limit, _ := cmd.Flags().GetInt("runs")

	runs, err := led.Runs(ctx, limit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCOMMAND\tSTARTED\tSTATUS\tDURATION")

	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Command, humanize.Time(run.StartedAt), run.Status,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if len(runs) > 0 {
		printYears(w, runs[0].Years)
	}

	names := make(map[string]string)
	for _, r := range cfg.Regions.Regions() {
		names[r.Code] = r.Name
	}

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nYEAR\tREGION\tNAME\tSTAGE\tOUTCOME\tUPDATED\tERROR")

	for _, year := range cfg.Years.Years() {
		units, err := led.Units(ctx, year)
		if err != nil {
			return err
		}

		for _, u := range units {
			name, ok := names[u.Region]
			if !ok {
				continue
			}

			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				year, u.Region, name, u.Stage, u.Outcome, humanize.Time(u.UpdatedAt), u.Error)
		}
	}

	return tw.Flush()
}
