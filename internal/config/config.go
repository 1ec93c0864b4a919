package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Hermes   HermesConfig   `yaml:"hermes"`
	Recalc   RecalcConfig   `yaml:"recalc"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
	RateLimit   int    `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
	Path   string `yaml:"path"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

// RecalcConfig controls the background loop that recalculates projects
// modified since their last calculation.
type RecalcConfig struct {
	Enabled        bool `yaml:"enabled"`
	TickIntervalMs int  `yaml:"tick_interval_ms"`
}

// LimitsConfig bounds problem size before the engine runs.
type LimitsConfig struct {
	MaxAlternatives      int `yaml:"max_alternatives"`
	MaxCriteria          int `yaml:"max_criteria"`
	CalculationTimeoutMs int `yaml:"calculation_timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Recalc.TickIntervalMs) * time.Millisecond
}

func (c *Config) CalculationTimeout() time.Duration {
	return time.Duration(c.Limits.CalculationTimeoutMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
			RateLimit:   120,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "ranker.db",
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Recalc: RecalcConfig{
			Enabled:        false,
			TickIntervalMs: 30000,
		},
		Limits: LimitsConfig{
			MaxAlternatives:      1000,
			MaxCriteria:          100,
			CalculationTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path required for sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Recalc.Enabled && c.Recalc.TickIntervalMs <= 0 {
		return fmt.Errorf("recalc.tick_interval_ms must be positive, got %d", c.Recalc.TickIntervalMs)
	}
	if c.Limits.MaxAlternatives <= 0 || c.Limits.MaxCriteria <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	return nil
}

// NewLogger builds the process logger from the logging section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RANKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("RANKER_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("RANKER_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("RANKER_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("RANKER_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		// A URL alone implies postgres unless the driver was set explicitly.
		if os.Getenv("RANKER_DATABASE_DRIVER") == "" {
			cfg.Database.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("RANKER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v, ok := os.LookupEnv("RANKER_HERMES_URL"); ok {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("RANKER_RECALC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recalc.Enabled = b
		}
	}
	if v := os.Getenv("RANKER_RECALC_TICK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recalc.TickIntervalMs = n
		}
	}
	if v := os.Getenv("RANKER_MAX_ALTERNATIVES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxAlternatives = n
		}
	}
	if v := os.Getenv("RANKER_MAX_CRITERIA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxCriteria = n
		}
	}
	if v := os.Getenv("RANKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RANKER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
