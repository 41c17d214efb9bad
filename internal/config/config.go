// Package config loads deptproxyd settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names.
const (
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
)

// Config is the daemon configuration.
type Config struct {
	Port int `env:"PORT" envDefault:"3000"`

	Backend string `env:"DEPTPROXY_BACKEND" envDefault:"supabase"`

	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`

	SQLitePath    string        `env:"DEPTPROXY_SQLITE_PATH" envDefault:"deptproxy.db"`
	SessionSecret string        `env:"DEPTPROXY_SESSION_SECRET"`
	SessionTTL    time.Duration `env:"DEPTPROXY_SESSION_TTL" envDefault:"1h"`
	SeedEmail     string        `env:"DEPTPROXY_SEED_EMAIL"`
	SeedPassword  string        `env:"DEPTPROXY_SEED_PASSWORD"`

	CacheTTL time.Duration `env:"DEPTPROXY_CACHE_TTL" envDefault:"5m"`

	CORSOrigins []string `env:"DEPTPROXY_CORS_ORIGINS" envDefault:"*" envSeparator:","`

	LogLevel  string `env:"DEPTPROXY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DEPTPROXY_LOG_FORMAT" envDefault:"json"`

	OTelEndpoint string `env:"DEPTPROXY_OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"DEPTPROXY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with. Missing store
// credentials are not an error: the status route reports them instead.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendSupabase, BackendSQLite:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive, got %s", c.CacheTTL)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// StoreConfigured reports whether the hosted store credentials are set.
// The SQLite backend needs none.
func (c Config) StoreConfigured() bool {
	if c.Backend == BackendSQLite {
		return true
	}
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}
