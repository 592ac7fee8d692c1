package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/samvad-scholar-harvester/internal/app"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/config"
	"github.com/samvad-hq/samvad-scholar-harvester/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "harvester failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	log.InfoObj("harvester starting", "config", map[string]any{
		"app":              cfg.AppName,
		"version":          cfg.AppVersion,
		"env":              cfg.Env,
		"storage_type":     cfg.StorageType,
		"queries_file":     cfg.QueriesFile,
		"publishers_file":  cfg.PublishersFile,
		"harvest_interval": cfg.HarvestInterval.String(),
		"crossref_base":    cfg.CrossrefBaseURL,
		"polite_pool":      cfg.CrossrefMailto != "",
		"max_requests":     cfg.MaxRequests,
		"max_articles":     cfg.MaxArticles,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.NewHarvester(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize harvester", "error", err.Error())
		return err
	}

	if err := harvester.Run(ctx); err != nil {
		return fmt.Errorf("harvester run: %w", err)
	}
	return nil
}
