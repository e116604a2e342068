package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"nadlan-scraper/checkpoint"
	"nadlan-scraper/config"
	"nadlan-scraper/extract"
	"nadlan-scraper/fetcher/nadlan"
	"nadlan-scraper/merge"
	"nadlan-scraper/models"
	"nadlan-scraper/services"
	"nadlan-scraper/storage"
	"nadlan-scraper/utils"
	"nadlan-scraper/worker"
)

func main() {
	logger := utils.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	cmd := "fetch"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "fetch":
		os.Exit(runFetch(cfg, logger))
	case "combine":
		os.Exit(runCombine(cfg, logger))
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [fetch|combine]\n", os.Args[0])
		os.Exit(2)
	}
}

func runFetch(cfg *config.Config, logger *utils.Logger) int {
	logger.Info("=== nadlan.gov.il fetch starting ===")
	logger.Info("Config — neighborhoods: %d | concurrency: %d | page limit: %d | retries: %d",
		len(cfg.Neighborhoods), cfg.MaxConcurrency, cfg.MaxPages, cfg.MaxRetries)

	checkpoints, err := checkpoint.NewStore(cfg.CheckpointDir, logger)
	if err != nil {
		logger.Error("Failed to open checkpoint store: %v", err)
		return 1
	}

	output, err := storage.NewCSVStore(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to create data directory: %v", err)
		return 1
	}

	pool, err := nadlan.NewPool(cfg, logger)
	if err != nil {
		logger.Error("Failed to start browser: %v", err)
		return 1
	}
	defer pool.Close()

	// An interrupt stops fetching at the next page boundary; the page being
	// written finishes its checkpoint first.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := worker.NewCoordinator(cfg, pool, extract.NewHTMLExtractor(), checkpoints, output, logger)
	outcomes := coordinator.Run(ctx, cfg.Neighborhoods)

	if ctx.Err() != nil {
		logger.Warn("Interrupted — progress saved in %s, rerun fetch to resume", cfg.CheckpointDir)
	}

	for _, out := range outcomes {
		if out.Status == models.StatusFailed {
			return 1
		}
	}
	return 0
}

func runCombine(cfg *config.Config, logger *utils.Logger) int {
	logger.Info("=== combining neighborhood files from %s ===", cfg.DataDir)

	merger := merge.NewMerger(logger)
	combined, report, err := merger.Merge(cfg.DataDir, cfg.CombinedOutputPath)
	if err != nil {
		logger.Error("Merge failed: %v", err)
		return 1
	}
	logger.Info("Combined dataset written to %s (%d records)", cfg.CombinedOutputPath, len(combined))
	if len(report.Skipped) > 0 {
		logger.Warn("Skipped %d unreadable files: %v", len(report.Skipped), report.Skipped)
	}

	insightSvc := services.NewInsightService(logger)
	insightSvc.Print(insightSvc.Generate(combined))

	if cfg.PostgresEnabled() {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			return 1
		}
		defer pgWriter.Close()

		if err := pgWriter.Write(combined); err != nil {
			logger.Error("PostgreSQL write failed: %v", err)
			return 1
		}
		logger.Info("Combined dataset stored in PostgreSQL (table: deals)")
	}

	return 0
}
