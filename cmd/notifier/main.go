// Notifier fans stored articles out to recipient chat channels with
// per-channel routing, filtering and rate limiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rssbus/config"
	"rssbus/dispatcher"
	"rssbus/domain"
	"rssbus/hotreload"
	"rssbus/logger"
	"rssbus/registry"
	"rssbus/store"
	"rssbus/telegram"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "notifier:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Init(cfg.Logging.Level)
	log.Info("notifier starting",
		"database", cfg.Database.Path,
		"interval", cfg.Dispatch.Interval,
		"config_dir", cfg.ConfigDir)

	channels, err := config.LoadRecipients(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	if len(channels) == 0 {
		return domain.ErrNoConfiguredRecipients
	}
	log.Info("recipients loaded", "channels", len(channels))

	db, err := store.Open(cfg.Database.Path, cfg.Database.BusyTimeout, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channels = validateCredentials(ctx, channels, cfg.HTTP.Timeout, log)
	if len(channels) == 0 {
		return domain.ErrNoConfiguredRecipients
	}

	reg := registry.New(log)
	reg.Rebuild(channels)

	newClient := func(botToken string) dispatcher.ChatClient {
		return telegram.NewClient(botToken, cfg.HTTP.Timeout, log)
	}

	disp := dispatcher.New(db, reg, newClient, dispatcher.Config{
		ScanLimit:    cfg.Dispatch.ScanLimit,
		PostInterval: cfg.Dispatch.PostInterval,
	}, log)

	reloadCh := hotreload.Watch(hotreload.RecipientsSignal, log)
	reload := func() ([]domain.RecipientChannel, error) { return config.LoadRecipients(cfg.ConfigDir) }

	err = disp.Run(ctx, cfg.Dispatch.Interval, reloadCh, reload)
	if errors.Is(err, context.Canceled) {
		log.Info("notifier shut down")
		return nil
	}
	return err
}

// validateCredentials checks every distinct bot token against the chat
// backend before dispatch starts. Channels whose token fails the check
// are disabled rather than taking the whole process down.
func validateCredentials(ctx context.Context, channels []domain.RecipientChannel, timeout time.Duration, log *slog.Logger) []domain.RecipientChannel {
	verified := make(map[string]bool)
	failed := make(map[string]bool)

	valid := make([]domain.RecipientChannel, 0, len(channels))
	for _, ch := range channels {
		if !verified[ch.BotToken] && !failed[ch.BotToken] {
			client := telegram.NewClient(ch.BotToken, timeout, log)
			username, err := client.GetMe(ctx)
			if err != nil {
				failed[ch.BotToken] = true
				log.Error("bot credential check failed, disabling channel",
					"channel", ch.Key(), "error", err)
			} else {
				verified[ch.BotToken] = true
				log.Info("bot credential verified", "channel", ch.Key(), "bot", username)
			}
		}

		if verified[ch.BotToken] {
			valid = append(valid, ch)
		} else {
			log.Warn("channel disabled by failed credential check", "channel", ch.Key())
		}
	}
	return valid
}
