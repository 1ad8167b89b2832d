package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ethpandaops/footprint/pkg/ledger"
	"github.com/ethpandaops/footprint/pkg/pipeline"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, import and diff every configured region and year",
	Long: `Run the full pipeline once. Years are processed in ascending order; within a
year every region is fetched, extracted and imported, then the year's snapshot
is formed and compared against the previous year. Work already done by an
earlier run is skipped, so interrupted runs can simply be started again.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApplication(cmd, func(ctx context.Context, app *pipeline.Application) error {
			run, err := app.Service.Run(ctx)
			printRun(cmd.OutOrStdout(), run)

			return err
		})
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Derive snapshots and change layers from the layers already stored",
	Long:  `Run only the change detection stage over the stored regional layers. Nothing is downloaded.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApplication(cmd, func(ctx context.Context, app *pipeline.Application) error {
			run, err := app.Service.RunChanges(ctx)
			printRun(cmd.OutOrStdout(), run)

			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(changesCmd)
}

func printRun(w io.Writer, run *ledger.Run) {
	if run == nil {
		return
	}

	fmt.Fprintf(w, "Run %s (%s): %s in %s\n", run.ID, run.Command, run.Status,
		run.FinishedAt.Sub(run.StartedAt).Round(time.Second))

	if len(run.Units) > 0 {
		labels := make([]string, 0, len(run.Units))
		for label := range run.Units {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\nUNIT OUTCOME\tCOUNT")

		for _, label := range labels {
			fmt.Fprintf(tw, "%s\t%d\n", label, run.Units[label])
		}

		_ = tw.Flush()
	}

	printYears(w, run.Years)

	if run.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", run.Error)
	}
}

func printYears(w io.Writer, years []ledger.YearSummary) {
	if len(years) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nYEAR\tOUTCOME\tSNAPSHOT\tFEATURES\tNEW\tERROR")

	for _, y := range years {
		newCount := "-"
		if y.Change != "" {
			newCount = humanize.Comma(y.ChangeCount)
		}

		snapshot := y.Snapshot
		if snapshot == "" {
			snapshot = "-"
		}

		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			y.Year, y.Outcome, snapshot, humanize.Comma(y.SnapshotCount), newCount, y.Error)
	}

	_ = tw.Flush()
}
