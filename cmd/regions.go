package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/ethpandaops/footprint/pkg/fetcher"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the configured regions and their archive addresses",
	Long:  `Validate the region catalog and print every region with the archive address of the last configured year.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		f, err := fetcher.New(logger, &cfg.Source, cfg.TempDir)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "PARENT\tCODE\tNAME\tARCHIVE %d\n", cfg.Years.To)

		for _, r := range cfg.Regions.Regions() {
			addr, err := f.URL(r, cfg.Years.To)
			if err != nil {
				return err
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Parent, r.Code, r.Name, addr)
		}

		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}
