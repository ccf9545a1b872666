// Package config provides configuration management for the alert platform.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds persistence configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// FeedConfig holds upstream price feed configuration.
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	// MaxRetries bounds reconnect attempts per outage; 0 retries forever.
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// StreamConfig holds fan-out hub and connection registry configuration.
type StreamConfig struct {
	// EventBufferSize is the size of the hub's inbound event queue.
	EventBufferSize int `mapstructure:"event_buffer_size"`
	// SendBufferSize is the per-connection outbound queue length.
	SendBufferSize int `mapstructure:"send_buffer_size"`
	// DeliveryTimeout bounds one connection send; on expiry the connection
	// is treated as dead and unregistered.
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	// MaxConcurrentDeliveries bounds parallel sends per dispatched event.
	MaxConcurrentDeliveries int `mapstructure:"max_concurrent_deliveries"`
	// SubscriberCacheTTL bounds staleness of the subscriber directory cache.
	SubscriberCacheTTL time.Duration `mapstructure:"subscriber_cache_ttl"`
	// TierCacheTTL bounds staleness of the entitlement tier cache.
	TierCacheTTL time.Duration `mapstructure:"tier_cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// JobsConfig holds background job schedules (robfig/cron specs).
type JobsConfig struct {
	MetricsSpec    string `mapstructure:"metrics_spec"`
	CacheSweepSpec string `mapstructure:"cache_sweep_spec"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradeedge"
	}
	return filepath.Join(home, ".config", "tradeedge")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config file is not an error; defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.path", filepath.Join(DefaultConfigDir(), "tradeedge.db"))

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.max_retries", 0)
	v.SetDefault("feed.base_delay", time.Second)

	v.SetDefault("stream.event_buffer_size", 1024)
	v.SetDefault("stream.send_buffer_size", 64)
	v.SetDefault("stream.delivery_timeout", 5*time.Second)
	v.SetDefault("stream.max_concurrent_deliveries", 32)
	v.SetDefault("stream.subscriber_cache_ttl", 30*time.Second)
	v.SetDefault("stream.tier_cache_ttl", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "tradeedge.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("jobs.metrics_spec", "@every 1m")
	v.SetDefault("jobs.cache_sweep_spec", "@every 5m")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADEEDGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("TRADEEDGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRADEEDGE_FEED_URL"); v != "" {
		cfg.Feed.URL = v
		cfg.Feed.Enabled = true
	}
	if v := os.Getenv("TRADEEDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Feed.Enabled && c.Feed.URL == "" {
		return fmt.Errorf("feed.url required when feed.enabled is true")
	}
	if c.Stream.DeliveryTimeout <= 0 {
		return fmt.Errorf("stream.delivery_timeout must be positive")
	}
	if c.Stream.SendBufferSize <= 0 {
		return fmt.Errorf("stream.send_buffer_size must be positive")
	}
	if c.Stream.MaxConcurrentDeliveries <= 0 {
		return fmt.Errorf("stream.max_concurrent_deliveries must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	return nil
}
