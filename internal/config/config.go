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
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Store    StoreConfig    `mapstructure:"store"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	RequestTimeout  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ScraperConfig governs the scrape pipeline.
type ScraperConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	UserAgent       string  `mapstructure:"user_agent"`
	RespectRobots   bool    `mapstructure:"respect_robots"`
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
	MaxDepthDefault int     `mapstructure:"max_depth_default"`
	MaxPagesDefault int     `mapstructure:"max_pages_default"`
	ArchiveRaw      bool    `mapstructure:"archive_raw"`
	// Headers are sent with every outbound fetch, plain or headless.
	Headers map[string]string `mapstructure:"headers"`
}

// HTTPConfig configures the plain HTTP fetch path.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs   int  `mapstructure:"settle_delay_ms"`
	PromotionThresh int  `mapstructure:"promotion_threshold_bytes"`
}

// LLMConfig points at an OpenAI-compatible chat-completions backend.
type LLMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StoreConfig selects and configures the agent store provider.
type StoreConfig struct {
	Provider        string        `mapstructure:"provider"`
	DataDir         string        `mapstructure:"data_dir"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// BlobConfig selects and configures the raw HTML archive provider.
type BlobConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
}

// PublishConfig selects and configures the event publisher.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("scraper.concurrency", 4)
	v.SetDefault("scraper.user_agent", "scrape-agent/0.1")
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.rate_limit_rps", 2.0)
	v.SetDefault("scraper.rate_limit_burst", 4)
	v.SetDefault("scraper.max_depth_default", 1)
	v.SetDefault("scraper.max_pages_default", 25)
	v.SetDefault("scraper.archive_raw", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_delay_ms", 500)
	v.SetDefault("headless.promotion_threshold_bytes", 2048)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.table", "agents")
	v.SetDefault("blob.provider", "none")
	v.SetDefault("publish.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("scraper.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && (c.Auth.Username == "" || c.Auth.Password == "") {
		return fmt.Errorf("auth.username and auth.password must be set when auth is enabled")
	}
	if c.LLM.APIKey != "" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url must be set when llm.api_key is set")
	}
	switch c.Store.Provider {
	case "memory":
	case "fs":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir must be set for the fs store")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store.provider %q (valid: memory, fs, postgres)", c.Store.Provider)
	}
	switch c.Blob.Provider {
	case "none", "memory":
	case "local":
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir must be set for the local blob store")
		}
	case "gcs":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket must be set for the gcs blob store")
		}
	default:
		return fmt.Errorf("unknown blob.provider %q (valid: none, memory, local, gcs)", c.Blob.Provider)
	}
	switch c.Publish.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Publish.ProjectID == "" {
			return fmt.Errorf("publish.project_id must be set for the pubsub publisher")
		}
	default:
		return fmt.Errorf("unknown publish.provider %q (valid: none, memory, pubsub)", c.Publish.Provider)
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
