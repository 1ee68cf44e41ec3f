package config

import "fmt"

func validateConfig(config *Config) error {
	if config.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if config.ConfigDir == "" {
		return fmt.Errorf("config dir must not be empty")
	}
	if config.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest interval must be positive, got %s", config.Ingest.Interval)
	}
	if config.Ingest.MaxConcurrency < 1 {
		return fmt.Errorf("ingest max concurrency must be at least 1, got %d", config.Ingest.MaxConcurrency)
	}
	if config.Ingest.PerHostLimit < 1 {
		return fmt.Errorf("ingest per-host limit must be at least 1, got %d", config.Ingest.PerHostLimit)
	}
	if config.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("ingest max attempts must be at least 1, got %d", config.Ingest.MaxAttempts)
	}
	if config.Dispatch.Interval <= 0 {
		return fmt.Errorf("dispatch interval must be positive, got %s", config.Dispatch.Interval)
	}
	if config.Dispatch.ScanLimit < 1 {
		return fmt.Errorf("dispatch scan limit must be at least 1, got %d", config.Dispatch.ScanLimit)
	}
	if config.Dispatch.PostInterval <= 0 {
		return fmt.Errorf("dispatch post interval must be positive, got %s", config.Dispatch.PostInterval)
	}
	if config.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", config.HTTP.Timeout)
	}
	if config.Retention.ArticleDays < 1 {
		return fmt.Errorf("article retention days must be at least 1, got %d", config.Retention.ArticleDays)
	}
	return nil
}
