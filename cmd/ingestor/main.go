// Ingestor polls the configured feed sources on a fixed interval and
// persists normalized articles into the shared article store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rssbus/config"
	"rssbus/domain"
	"rssbus/fetcher"
	"rssbus/governor"
	"rssbus/hotreload"
	"rssbus/ingestor"
	"rssbus/logger"
	"rssbus/normalizer"
	"rssbus/store"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "ingestor:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Init(cfg.Logging.Level)
	log.Info("ingestor starting",
		"database", cfg.Database.Path,
		"interval", cfg.Ingest.Interval,
		"config_dir", cfg.ConfigDir)

	feeds, err := config.LoadSources(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if len(feeds) == 0 {
		return fmt.Errorf("no active feed sources in %s/%s", cfg.ConfigDir, config.SourcesFileName)
	}
	log.Info("sources loaded", "feeds", len(feeds))

	db, err := store.Open(cfg.Database.Path, cfg.Database.BusyTimeout, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ing := ingestor.New(
		db,
		fetcher.New(cfg.HTTP.Timeout, cfg.HTTP.DialTimeout, cfg.HTTP.UserAgent, log),
		normalizer.New(cfg.Ingest.MaxArticleAge, cfg.Ingest.MaxEntries, log),
		governor.New(log),
		ingestor.Config{
			Interval:       cfg.Ingest.Interval,
			MaxConcurrency: int64(cfg.Ingest.MaxConcurrency),
			PerHostLimit:   int64(cfg.Ingest.PerHostLimit),
			MaxAttempts:    cfg.Ingest.MaxAttempts,
			RetryBaseDelay: cfg.Ingest.RetryBaseDelay,
		},
		log,
	)

	go ing.RunRetention(ctx, cfg.Retention.PruneInterval, cfg.Retention.ArticleDays)

	reloadCh := hotreload.Watch(hotreload.SourcesSignal, log)
	reload := func() ([]domain.Feed, error) { return config.LoadSources(cfg.ConfigDir) }

	err = ing.Run(ctx, feeds, reloadCh, reload)
	if errors.Is(err, context.Canceled) {
		log.Info("ingestor shut down")
		return nil
	}
	return err
}
