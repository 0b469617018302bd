package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"atbb-scraper/config"
	"atbb-scraper/services"
	"atbb-scraper/storage"
	"atbb-scraper/utils"
)

// main runs one capture with configuration from config/atbb.yaml (if present),
// .env and the environment. cmd/atbb offers the same flow with flags.
func main() {
	os.Exit(capture())
}

func capture() int {
	yamlPath := "config/atbb.yaml"
	if _, err := os.Stat(yamlPath); err != nil {
		yamlPath = ""
	}
	cfg, err := config.Load(yamlPath, ".env")
	if err != nil {
		slog.Error("load config", "error", err)
		return 1
	}

	log := utils.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		return 1
	}

	log.Info("╔═══════════════════════════════════════════════════╗")
	log.Info("║            ATBB Listing Gallery Capture           ║")
	log.Info("╚═══════════════════════════════════════════════════╝")
	log.Info("config",
		"portal", cfg.PortalURL,
		"browser", cfg.Browser,
		"headless", cfg.Headless,
		"keyword_file", cfg.KeywordFile,
		"output", cfg.OutputDir,
		"db", cfg.DBDriver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &services.Runner{Config: cfg, Logger: log, Stdin: os.Stdin}

	store, err := storage.Open(cfg)
	switch {
	case err == nil:
		defer store.Close()
		runner.Store = store
	case errors.Is(err, storage.ErrDisabled):
	default:
		log.Warn("run history unavailable", "error", err)
	}

	run, runErr := runner.Run(ctx)

	stats := utils.BuildSummaryStats(run)
	log.Info("═══════════════════════════════════════════════════")
	log.Info("DONE", "status", services.Describe(run), "manifest", cfg.ManifestPath())
	log.Info("STATS",
		"keyword", run.Gallery.Keyword,
		"expected", stats.Expected,
		"captured", stats.Captured,
		"bytes", stats.TotalBytes,
		"duration", stats.Duration,
		"per_shot", stats.PerShot,
	)
	if stats.Captured > 0 {
		log.Info("largest screenshot", "path", stats.LargestShot.Path, "bytes", stats.LargestShot.Bytes)
	}
	for _, f := range stats.Failed {
		log.Warn("missing screenshot", "index", f.Index, "error", f.Err)
	}
	log.Info("═══════════════════════════════════════════════════")

	if runErr != nil {
		return 1
	}
	return 0
}
