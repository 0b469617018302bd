package commands

import (
	"os"

	"github.com/spf13/cobra"

	"atbb-scraper/services"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and leave the browser open for manual use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			cfg.KeepOpen = true
			runner := &services.Runner{Config: cfg, Logger: logger, Stdin: os.Stdin}
			return runner.LoginOnly(cmd.Context())
		},
	}
}
