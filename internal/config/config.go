// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Visual    VisualConfig    `mapstructure:"visual"`
	Driver    DriverConfig    `mapstructure:"driver"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlConfig sets session defaults; per-session requests may override them.
type CrawlConfig struct {
	MaxDepthDefault    int `mapstructure:"max_depth_default"`
	MaxPagesDefault    int `mapstructure:"max_pages_default"`
	ConcurrencyDefault int `mapstructure:"concurrency_default"`
	PageTimeoutSec     int `mapstructure:"page_timeout_seconds"`
	RoundDelayMs       int `mapstructure:"round_delay_ms"`
	MaxAttempts        int `mapstructure:"max_attempts"`
}

// VisualConfig sets checkpoint pipeline defaults.
type VisualConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Profiles            []string `mapstructure:"profiles"`
	AutoCreateBaselines bool     `mapstructure:"auto_create_baselines"`
	ScreenshotFormat    string   `mapstructure:"screenshot_format"`
	ScreenshotQuality   int      `mapstructure:"screenshot_quality"`
	SettleDelayMs       int      `mapstructure:"settle_delay_ms"`
}

// DriverConfig selects and configures the page automation driver.
type DriverConfig struct {
	// Kind is "headless" (chromedp) or "http" (colly).
	Kind          string `mapstructure:"kind"`
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// RateLimitConfig paces outbound requests per host.
type RateLimitConfig struct {
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// StorageConfig selects the screenshot blob backend.
type StorageConfig struct {
	// Kind is "memory", "local", or "gcs".
	Kind      string `mapstructure:"kind"`
	LocalPath string `mapstructure:"local_path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// topic disables external publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.max_depth_default", 2)
	v.SetDefault("crawl.max_pages_default", 50)
	v.SetDefault("crawl.concurrency_default", 2)
	v.SetDefault("crawl.page_timeout_seconds", 30)
	v.SetDefault("crawl.round_delay_ms", 1000)
	v.SetDefault("crawl.max_attempts", 3)
	v.SetDefault("visual.enabled", true)
	v.SetDefault("visual.profiles", []string{"full_page"})
	v.SetDefault("visual.auto_create_baselines", true)
	v.SetDefault("visual.screenshot_format", "png")
	v.SetDefault("visual.screenshot_quality", 90)
	v.SetDefault("visual.settle_delay_ms", 500)
	v.SetDefault("driver.kind", "headless")
	v.SetDefault("driver.user_agent", "pagelens-bot/0.1")
	v.SetDefault("driver.respect_robots", true)
	v.SetDefault("ratelimit.default_rps", 2.0)
	v.SetDefault("ratelimit.default_burst", 1)
	v.SetDefault("storage.kind", "local")
	v.SetDefault("storage.local_path", "screenshots")
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.ConcurrencyDefault <= 0 {
		return fmt.Errorf("crawl.concurrency_default must be > 0")
	}
	if c.Crawl.PageTimeoutSec <= 0 {
		return fmt.Errorf("crawl.page_timeout_seconds must be > 0")
	}
	switch c.Driver.Kind {
	case "headless", "http":
	default:
		return fmt.Errorf("driver.kind must be headless or http, got %q", c.Driver.Kind)
	}
	switch c.Storage.Kind {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.kind must be memory, local, or gcs, got %q", c.Storage.Kind)
	}
	if c.Storage.Kind == "local" && c.Storage.LocalPath == "" {
		return fmt.Errorf("storage.local_path must be set for local storage")
	}
	if c.Storage.Kind == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for gcs storage")
	}
	switch c.Visual.ScreenshotFormat {
	case "png", "jpeg":
	default:
		return fmt.Errorf("visual.screenshot_format must be png or jpeg, got %q", c.Visual.ScreenshotFormat)
	}
	return nil
}
