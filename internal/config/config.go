// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	RobotsCache RobotsCacheConfig `mapstructure:"robots_cache"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	LLM         LLMConfig         `mapstructure:"llm"`
	DB          DBConfig          `mapstructure:"db"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Events      EventsConfig      `mapstructure:"events"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs content fetching and politeness.
type ScraperConfig struct {
	UserAgent            string         `mapstructure:"user_agent"`
	HTTPTimeoutSeconds   int            `mapstructure:"http_timeout_seconds"`
	DefaultDelayMs       int            `mapstructure:"default_delay_ms"`
	MaxRetries           int            `mapstructure:"max_retries"`
	RobotsTimeoutSeconds int            `mapstructure:"robots_timeout_seconds"`
	RobotsTTLMinutes     int            `mapstructure:"robots_ttl_minutes"`
	BlockedDomains       []string       `mapstructure:"blocked_domains"`
	RedditHost           string         `mapstructure:"reddit_host"`
	HackerNewsAPI        string         `mapstructure:"hackernews_api"`
	Headless             HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures JS rendering for HTML pages.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// RobotsCacheConfig selects where parsed robots.txt bodies are cached.
type RobotsCacheConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// AlertsConfig controls change detection thresholds and delivery.
type AlertsConfig struct {
	MinNewItems           int    `mapstructure:"min_new_items"`
	DetectRemovals        bool   `mapstructure:"detect_removals"`
	DetectUpdates         bool   `mapstructure:"detect_updates"`
	MaxRetries            int    `mapstructure:"max_retries"`
	WebhookTimeoutSeconds int    `mapstructure:"webhook_timeout_seconds"`
	EmailFrom             string `mapstructure:"email_from"`
	ResendAPIKey          string `mapstructure:"resend_api_key"`
}

// LLMConfig configures the summarization collaborator.
type LLMConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	APIKey           string  `mapstructure:"api_key"`
	BaseURL          string  `mapstructure:"base_url"`
	Model            string  `mapstructure:"model"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	Temperature      float32 `mapstructure:"temperature"`
	MaxSummaryLength int     `mapstructure:"max_summary_length"`
	MaxRetries       int     `mapstructure:"max_retries"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinConns     int    `mapstructure:"min_conns"`
}

// QueueConfig selects how scrape requests reach the workers.
type QueueConfig struct {
	Backend     string `mapstructure:"backend"`
	Depth       int    `mapstructure:"depth"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSStream  string `mapstructure:"nats_stream"`
	NATSSubject string `mapstructure:"nats_subject"`
	NATSDurable string `mapstructure:"nats_durable"`
	// Lease selects where per-signal run exclusions live: memory or redis.
	// Replicas sharing a nats queue must share a redis lease.
	Lease           string `mapstructure:"lease"`
	LeaseTTLSeconds int    `mapstructure:"lease_ttl_seconds"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisPassword   string `mapstructure:"redis_password"`
	RedisDB         int    `mapstructure:"redis_db"`
}

// EventsConfig holds metadata for pulse event notifications.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig sets where raw pulse snapshots are copied.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// SchedulerConfig controls the interval sweep and worker pool.
type SchedulerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	TickSeconds int  `mapstructure:"tick_seconds"`
	Workers     int  `mapstructure:"workers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULSEFLOW")
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

// DefaultBlockedDomains are platforms that forbid automated access.
var DefaultBlockedDomains = []string{
	"amazon.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"facebook.com",
	"instagram.com",
	"tiktok.com",
	"netflix.com",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("scraper.user_agent", "PulseFlow/1.0 (+https://pulseflow.app/bot)")
	v.SetDefault("scraper.http_timeout_seconds", 30)
	v.SetDefault("scraper.default_delay_ms", 2000)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.robots_timeout_seconds", 5)
	v.SetDefault("scraper.robots_ttl_minutes", 60)
	v.SetDefault("scraper.blocked_domains", DefaultBlockedDomains)
	v.SetDefault("scraper.reddit_host", "old.reddit.com")
	v.SetDefault("scraper.hackernews_api", "https://hn.algolia.com/api/v1")
	v.SetDefault("scraper.headless.enabled", false)
	v.SetDefault("scraper.headless.max_parallel", 1)
	v.SetDefault("scraper.headless.nav_timeout_seconds", 25)
	v.SetDefault("scraper.headless.promotion_threshold", 2048)
	v.SetDefault("robots_cache.backend", "memory")
	v.SetDefault("alerts.min_new_items", 1)
	v.SetDefault("alerts.detect_removals", false)
	v.SetDefault("alerts.detect_updates", false)
	v.SetDefault("alerts.max_retries", 3)
	v.SetDefault("alerts.webhook_timeout_seconds", 10)
	v.SetDefault("alerts.email_from", "PulseFlow <alerts@pulseflow.dev>")
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_summary_length", 500)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.depth", 256)
	v.SetDefault("queue.nats_stream", "SCRAPES")
	v.SetDefault("queue.nats_subject", "signal.scrape.requested")
	v.SetDefault("queue.nats_durable", "pulseflow-workers")
	v.SetDefault("queue.lease", "memory")
	v.SetDefault("queue.lease_ttl_seconds", 900)
	v.SetDefault("events.backend", "none")
	v.SetDefault("events.topic_name", "pulseflow-pulses")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "pulses")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_seconds", 60)
	v.SetDefault("scheduler.workers", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scraper.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.http_timeout_seconds must be > 0")
	}
	if c.Scraper.MaxRetries <= 0 {
		return fmt.Errorf("scraper.max_retries must be > 0")
	}
	if c.Scraper.DefaultDelayMs < 0 {
		return fmt.Errorf("scraper.default_delay_ms must be >= 0")
	}
	if c.Scraper.Headless.Enabled && c.Scraper.Headless.MaxParallel <= 0 {
		return fmt.Errorf("scraper.headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Alerts.MinNewItems < 0 {
		return fmt.Errorf("alerts.min_new_items must be >= 0")
	}
	if c.Alerts.MaxRetries <= 0 {
		return fmt.Errorf("alerts.max_retries must be > 0")
	}
	if c.LLM.Enabled && c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set when llm is enabled")
	}
	if err := oneOf("robots_cache.backend", c.RobotsCache.Backend, "memory", "redis"); err != nil {
		return err
	}
	if c.RobotsCache.Backend == "redis" && c.RobotsCache.RedisAddr == "" {
		return fmt.Errorf("robots_cache.redis_addr is required for the redis backend")
	}
	if err := oneOf("db.driver", c.DB.Driver, "memory", "postgres"); err != nil {
		return err
	}
	if c.DB.Driver == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for the postgres driver")
	}
	if err := oneOf("queue.backend", c.Queue.Backend, "memory", "nats"); err != nil {
		return err
	}
	if c.Queue.Backend == "nats" && c.Queue.NATSURL == "" {
		return fmt.Errorf("queue.nats_url is required for the nats backend")
	}
	if err := oneOf("queue.lease", c.Queue.Lease, "memory", "redis"); err != nil {
		return err
	}
	if c.Queue.Backend == "nats" && c.Queue.Lease != "redis" {
		return fmt.Errorf("queue.lease must be redis for the nats backend")
	}
	if c.Queue.Lease == "redis" && c.Queue.RedisAddr == "" {
		return fmt.Errorf("queue.redis_addr is required for the redis lease")
	}
	if err := oneOf("events.backend", c.Events.Backend, "none", "memory", "pubsub"); err != nil {
		return err
	}
	if c.Events.Backend == "pubsub" && (c.Events.ProjectID == "" || c.Events.TopicName == "") {
		return fmt.Errorf("events.project_id and events.topic_name are required for pubsub")
	}
	if err := oneOf("archive.backend", c.Archive.Backend, "none", "memory", "local", "gcs"); err != nil {
		return err
	}
	if c.Archive.Backend == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required for the gcs backend")
	}
	if c.Archive.Backend == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir is required for the local backend")
	}
	if c.Scheduler.Enabled && c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be > 0")
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// HTTPTimeout returns the scraper fetch timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Scraper.HTTPTimeoutSeconds) * time.Second
}

// DefaultDelay returns the per-domain politeness delay.
func (c Config) DefaultDelay() time.Duration {
	return time.Duration(c.Scraper.DefaultDelayMs) * time.Millisecond
}

// RobotsTTL returns how long robots.txt bodies stay cached.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Scraper.RobotsTTLMinutes) * time.Minute
}

// WebhookTimeout returns the webhook delivery timeout.
func (c Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Alerts.WebhookTimeoutSeconds) * time.Second
}

// LeaseTTL returns how long a run lease survives without release.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(c.Queue.LeaseTTLSeconds) * time.Second
}

// SchedulerTick returns the sweep interval.
func (c Config) SchedulerTick() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}
