package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"atbb-scraper/config"
	"atbb-scraper/storage"
	"atbb-scraper/utils"
)

var (
	configPath  string
	envFile     string
	headless    bool
	browserKind string
	keywordFile string
	outputDir   string
	keepOpen    bool
	remoteURL   string
	logLevel    string

	cfg    config.Config
	logger *slog.Logger
)

// Execute builds the command tree and runs it with ctx.
func Execute(ctx context.Context) error {
	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		if logger != nil {
			logger.Error("atbb failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "atbb:", err)
		}
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "atbb",
		Short:         "Log in to ATBB, search a keyword and screenshot the listing gallery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with credentials")
	pf.BoolVar(&headless, "headless", false, "run the browser without a window")
	pf.StringVar(&browserKind, "browser", config.BrowserChrome, "browser to drive (chrome|edge)")
	pf.StringVar(&keywordFile, "keyword-file", "", "file whose last line is the search keyword")
	pf.StringVar(&outputDir, "out", "", "output directory for screenshots and the manifest")
	pf.BoolVar(&keepOpen, "keep-open", true, "wait for Enter before closing the browser")
	pf.StringVar(&remoteURL, "remote-url", "", "connect to a running browser's DevTools endpoint")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(runCmd(), loginCmd(), historyCmd())
	return root
}

// setup loads the configuration and applies flags that were set explicitly.
func setup(cmd *cobra.Command) error {
	loaded, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("headless") {
		loaded.Headless = headless
	}
	if flags.Changed("browser") {
		loaded.Browser = browserKind
	}
	if flags.Changed("keyword-file") {
		loaded.KeywordFile = keywordFile
	}
	if flags.Changed("out") {
		loaded.OutputDir = outputDir
	}
	if flags.Changed("keep-open") {
		loaded.KeepOpen = keepOpen
	}
	if flags.Changed("remote-url") {
		loaded.RemoteURL = remoteURL
	}
	if flags.Changed("log-level") {
		loaded.LogLevel = logLevel
	}

	cfg = loaded
	logger = utils.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return nil
}

// openStore returns the run history store, or nil when history is disabled
// or unreachable.
func openStore() *storage.Store {
	store, err := storage.Open(cfg)
	switch {
	case err == nil:
		return store
	case errors.Is(err, storage.ErrDisabled):
		logger.Debug("run history disabled")
	default:
		logger.Warn("run history unavailable", "driver", cfg.DBDriver, "error", err)
	}
	return nil
}
