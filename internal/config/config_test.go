package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scraper.UserAgent != "PulseFlow/1.0 (+https://pulseflow.app/bot)" {
		t.Fatalf("unexpected user agent %q", cfg.Scraper.UserAgent)
	}
	if got := cfg.HTTPTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s http timeout, got %v", got)
	}
	if got := cfg.DefaultDelay(); got != 2*time.Second {
		t.Fatalf("expected 2s default delay, got %v", got)
	}
	if got := cfg.RobotsTTL(); got != time.Hour {
		t.Fatalf("expected 1h robots ttl, got %v", got)
	}
	if got := cfg.WebhookTimeout(); got != 10*time.Second {
		t.Fatalf("expected 10s webhook timeout, got %v", got)
	}
	if cfg.Alerts.MinNewItems != 1 || cfg.Alerts.DetectRemovals || cfg.Alerts.DetectUpdates {
		t.Fatalf("unexpected alert defaults: %+v", cfg.Alerts)
	}
	if len(cfg.Scraper.BlockedDomains) != len(DefaultBlockedDomains) {
		t.Fatalf("expected default blocklist, got %v", cfg.Scraper.BlockedDomains)
	}
	if cfg.DB.Driver != "memory" || cfg.Queue.Backend != "memory" {
		t.Fatalf("expected in-memory backends by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
scraper:
  user_agent: test-agent
  default_delay_ms: 500
  max_retries: 5
  blocked_domains: ["example.org"]
  headless:
    enabled: true
    max_parallel: 2
alerts:
  min_new_items: 3
  detect_removals: true
  webhook_timeout_seconds: 4
llm:
  enabled: true
  api_key: key
  model: gpt-4o-mini
db:
  driver: postgres
  dsn: postgres://localhost/pulseflow
queue:
  backend: nats
  nats_url: nats://localhost:4222
  lease: redis
  redis_addr: localhost:6379
archive:
  backend: gcs
  bucket: pulses
scheduler:
  tick_seconds: 15
  workers: 8
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scraper.UserAgent != "test-agent" || cfg.Scraper.MaxRetries != 5 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if len(cfg.Scraper.BlockedDomains) != 1 || cfg.Scraper.BlockedDomains[0] != "example.org" {
		t.Fatalf("expected blocklist override, got %v", cfg.Scraper.BlockedDomains)
	}
	if !cfg.Scraper.Headless.Enabled || cfg.Scraper.Headless.MaxParallel != 2 {
		t.Fatalf("expected headless overrides: %+v", cfg.Scraper.Headless)
	}
	if cfg.Alerts.MinNewItems != 3 || !cfg.Alerts.DetectRemovals {
		t.Fatalf("expected alert overrides: %+v", cfg.Alerts)
	}
	if got := cfg.WebhookTimeout(); got != 4*time.Second {
		t.Fatalf("expected 4s webhook timeout, got %v", got)
	}
	if got := cfg.SchedulerTick(); got != 15*time.Second {
		t.Fatalf("expected 15s tick, got %v", got)
	}
	if cfg.Scheduler.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Scheduler.Workers)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Server:      ServerConfig{Port: 8080},
		Scraper:     ScraperConfig{HTTPTimeoutSeconds: 30, MaxRetries: 3},
		RobotsCache: RobotsCacheConfig{Backend: "memory"},
		Alerts:      AlertsConfig{MinNewItems: 1, MaxRetries: 3},
		DB:          DBConfig{Driver: "memory"},
		Queue:       QueueConfig{Backend: "memory", Lease: "memory"},
		Events:      EventsConfig{Backend: "none"},
		Archive:     ArchiveConfig{Backend: "none"},
		Scheduler:   SchedulerConfig{Enabled: true, TickSeconds: 60, Workers: 1},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"invalid timeout", func(c *Config) { c.Scraper.HTTPTimeoutSeconds = 0 }, "scraper.http_timeout_seconds"},
		{"invalid retries", func(c *Config) { c.Scraper.MaxRetries = 0 }, "scraper.max_retries"},
		{"headless missing max parallel", func(c *Config) {
			c.Scraper.Headless.Enabled = true
		}, "scraper.headless.max_parallel"},
		{"unknown robots backend", func(c *Config) { c.RobotsCache.Backend = "disk" }, "robots_cache.backend"},
		{"redis without addr", func(c *Config) { c.RobotsCache.Backend = "redis" }, "robots_cache.redis_addr"},
		{"postgres without dsn", func(c *Config) { c.DB.Driver = "postgres" }, "db.dsn"},
		{"nats without url", func(c *Config) { c.Queue.Backend = "nats" }, "queue.nats_url"},
		{"unknown lease", func(c *Config) { c.Queue.Lease = "etcd" }, "queue.lease"},
		{"nats with memory lease", func(c *Config) {
			c.Queue.Backend = "nats"
			c.Queue.NATSURL = "nats://localhost:4222"
		}, "queue.lease must be redis"},
		{"redis lease without addr", func(c *Config) { c.Queue.Lease = "redis" }, "queue.redis_addr"},
		{"pubsub without project", func(c *Config) { c.Events.Backend = "pubsub" }, "events.project_id"},
		{"gcs without bucket", func(c *Config) { c.Archive.Backend = "gcs" }, "archive.bucket"},
		{"llm without model", func(c *Config) { c.LLM.Enabled = true }, "llm.model"},
		{"no workers", func(c *Config) { c.Scheduler.Workers = 0 }, "scheduler.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
