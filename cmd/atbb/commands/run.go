package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"atbb-scraper/services"
	"atbb-scraper/utils"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in, search the keyword and capture every gallery image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			runner := &services.Runner{Config: cfg, Logger: logger, Stdin: os.Stdin}
			if store := openStore(); store != nil {
				defer store.Close()
				runner.Store = store
			}

			run, err := runner.Run(cmd.Context())

			stats := utils.BuildSummaryStats(run)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %s\n", run.ID, services.Describe(run))
			fmt.Fprintf(out, "  images   %d/%d (%d bytes)\n", stats.Captured, stats.Expected, stats.TotalBytes)
			fmt.Fprintf(out, "  duration %s\n", stats.Duration.Round(100*time.Millisecond))
			for _, f := range stats.Failed {
				fmt.Fprintf(out, "  failed   #%d: %s\n", f.Index, f.Err)
			}
			fmt.Fprintf(out, "  manifest %s\n", cfg.ManifestPath())
			return err
		},
	}
}
