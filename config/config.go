package config

import "time"

type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Ingest    IngestConfig    `json:"ingest"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	HTTP      HTTPConfig      `json:"http"`
	Retention RetentionConfig `json:"retention"`
	Logging   LoggingConfig   `json:"logging"`

	ConfigDir string `json:"config_dir" env:"CONFIG_DIR" default:"config"`
}

type DatabaseConfig struct {
	Path        string        `json:"path" env:"DATABASE_PATH" default:"rss_media_bus.db"`
	BusyTimeout time.Duration `json:"busy_timeout" env:"DB_BUSY_TIMEOUT" default:"5s"`
}

type IngestConfig struct {
	Interval       time.Duration `json:"interval" env:"INGEST_INTERVAL" default:"5m"`
	MaxConcurrency int           `json:"max_concurrency" env:"INGEST_MAX_CONCURRENCY" default:"5"`
	PerHostLimit   int           `json:"per_host_limit" env:"INGEST_PER_HOST_LIMIT" default:"3"`
	MaxAttempts    int           `json:"max_attempts" env:"INGEST_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `json:"retry_base_delay" env:"INGEST_RETRY_BASE_DELAY" default:"2s"`
	MaxArticleAge  time.Duration `json:"max_article_age" env:"INGEST_MAX_ARTICLE_AGE" default:"24h"`
	MaxEntries     int           `json:"max_entries" env:"INGEST_MAX_ENTRIES" default:"50"`
}

type DispatchConfig struct {
	Interval     time.Duration `json:"interval" env:"DISPATCH_INTERVAL" default:"30s"`
	ScanLimit    int           `json:"scan_limit" env:"DISPATCH_SCAN_LIMIT" default:"500"`
	PostInterval time.Duration `json:"post_interval" env:"DISPATCH_POST_INTERVAL" default:"3s"`
}

type HTTPConfig struct {
	Timeout     time.Duration `json:"timeout" env:"HTTP_TIMEOUT" default:"30s"`
	DialTimeout time.Duration `json:"dial_timeout" env:"HTTP_DIAL_TIMEOUT" default:"10s"`
	UserAgent   string        `json:"user_agent" env:"HTTP_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
}

type RetentionConfig struct {
	ArticleDays   int           `json:"article_days" env:"ARTICLE_RETENTION_DAYS" default:"90"`
	PruneInterval time.Duration `json:"prune_interval" env:"PRUNE_INTERVAL" default:"24h"`
}

type LoggingConfig struct {
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`
}

// NewConfig builds the process configuration from environment variables with
// fallback to tag defaults.
func NewConfig() (*Config, error) {
	config := &Config{}

	if err := loadFromEnvironment(config); err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}
