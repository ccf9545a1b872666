package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load with no config file failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Stream.EventBufferSize != 1024 || cfg.Stream.SendBufferSize != 64 {
		t.Errorf("stream buffer defaults wrong: %+v", cfg.Stream)
	}
	if cfg.Stream.DeliveryTimeout != 5*time.Second {
		t.Errorf("delivery timeout = %v, want 5s", cfg.Stream.DeliveryTimeout)
	}
	if cfg.Feed.Enabled {
		t.Error("feed must be disabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Jobs.MetricsSpec == "" || cfg.Jobs.CacheSweepSpec == "" {
		t.Error("job specs must have defaults")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
[server]
addr = ":9999"

[stream]
delivery_timeout = "2s"
send_buffer_size = 16

[feed]
enabled = true
url = "wss://feed.example.com/prices"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("server.addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Stream.DeliveryTimeout != 2*time.Second {
		t.Errorf("delivery_timeout = %v, want 2s", cfg.Stream.DeliveryTimeout)
	}
	if cfg.Stream.SendBufferSize != 16 {
		t.Errorf("send_buffer_size = %d, want 16", cfg.Stream.SendBufferSize)
	}
	if !cfg.Feed.Enabled || cfg.Feed.URL != "wss://feed.example.com/prices" {
		t.Errorf("feed config not loaded: %+v", cfg.Feed)
	}
	// Unset keys keep their defaults.
	if cfg.Stream.EventBufferSize != 1024 {
		t.Errorf("event_buffer_size = %d, want default 1024", cfg.Stream.EventBufferSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADEEDGE_ADDR", ":7777")
	t.Setenv("TRADEEDGE_FEED_URL", "wss://override.example.com")
	t.Setenv("TRADEEDGE_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("env addr override ignored: %q", cfg.Server.Addr)
	}
	if !cfg.Feed.Enabled || cfg.Feed.URL != "wss://override.example.com" {
		t.Errorf("env feed override must enable the feed: %+v", cfg.Feed)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env log level override ignored: %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"feed enabled without url", func(c *Config) { c.Feed.Enabled = true; c.Feed.URL = "" }},
		{"zero delivery timeout", func(c *Config) { c.Stream.DeliveryTimeout = 0 }},
		{"zero send buffer", func(c *Config) { c.Stream.SendBufferSize = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
