// Package common provides shared utilities for folio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for folio
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Portfolio   PortfolioConfig `toml:"portfolio"`
	Prices      PricesConfig    `toml:"prices"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
	TradeRate    int    `toml:"trade_rate"` // trades per second per user
}

// GetReadTimeout parses the read timeout, defaulting to 30s.
func (c *ServerConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout parses the write timeout, defaulting to 60s.
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 60*time.Second)
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend   string `toml:"backend"` // "surrealdb" or "postgres"
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	DSN       string `toml:"dsn"` // postgres connection string
}

// PortfolioConfig tunes valuation and snapshot behaviour.
type PortfolioConfig struct {
	IncludeWalletInTPV     bool    `toml:"include_wallet_in_tpv"`
	HoldingsCacheSize      int     `toml:"holdings_cache_size"`
	SnapshotMinInterval    string  `toml:"snapshot_min_interval"`
	SnapshotMaxInterval    string  `toml:"snapshot_max_interval"`
	SnapshotDeltaThreshold float64 `toml:"snapshot_delta_threshold"`
	SnapshotWriteTimeout   string  `toml:"snapshot_write_timeout"`
	DownsampleThreshold    int     `toml:"downsample_threshold"`
}

// GetSnapshotMinInterval parses the throttle minimum interval.
func (c *PortfolioConfig) GetSnapshotMinInterval() time.Duration {
	return parseDuration(c.SnapshotMinInterval, 30*time.Second)
}

// GetSnapshotMaxInterval parses the throttle maximum interval.
func (c *PortfolioConfig) GetSnapshotMaxInterval() time.Duration {
	return parseDuration(c.SnapshotMaxInterval, 60*time.Second)
}

// GetSnapshotWriteTimeout parses the timeout applied to background snapshot writes.
func (c *PortfolioConfig) GetSnapshotWriteTimeout() time.Duration {
	return parseDuration(c.SnapshotWriteTimeout, 10*time.Second)
}

// PricesConfig bounds price lookups.
type PricesConfig struct {
	Timeout   string `toml:"timeout"`
	RateLimit int    `toml:"rate_limit"`
	QuoteTTL  string `toml:"quote_ttl"`
}

// GetTimeout parses and returns the lookup timeout
func (c *PricesConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 5*time.Second)
}

// GetQuoteTTL parses and returns how long a quote is cached
func (c *PricesConfig) GetQuoteTTL() time.Duration {
	return parseDuration(c.QuoteTTL, 15*time.Second)
}

// SchedulerConfig controls the background revaluation job.
type SchedulerConfig struct {
	Enabled     bool   `toml:"enabled"`
	RevalueSpec string `toml:"revalue_spec"` // cron spec, e.g. "@every 30s"
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  "30s",
			WriteTimeout: "60s",
			TradeRate:    5,
		},
		Storage: StorageConfig{
			Backend:   "surrealdb",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "folio",
			Database:  "folio",
			Username:  "root",
			Password:  "root",
		},
		Portfolio: PortfolioConfig{
			IncludeWalletInTPV:     false,
			HoldingsCacheSize:      100,
			SnapshotMinInterval:    "30s",
			SnapshotMaxInterval:    "60s",
			SnapshotDeltaThreshold: 0.001,
			SnapshotWriteTimeout:   "10s",
			DownsampleThreshold:    300,
		},
		Prices: PricesConfig{
			Timeout:   "5s",
			RateLimit: 20,
			QuoteTTL:  "15s",
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			RevalueSpec: "@every 30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Outputs:    []string{"console"},
			FilePath:   "./logs/folio.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is loaded first when present; it
// never overrides variables already set in the process environment.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("FOLIO_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FOLIO_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("FOLIO_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("FOLIO_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}
	if v := os.Getenv("FOLIO_DATABASE_URL"); v != "" {
		config.Storage.DSN = v
	}

	if v := os.Getenv("FOLIO_INCLUDE_WALLET_IN_TPV"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Portfolio.IncludeWalletInTPV = b
		}
	}

	if v := os.Getenv("FOLIO_SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Scheduler.Enabled = b
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "surrealdb":
		if c.Storage.Address == "" {
			return fmt.Errorf("storage.address is required for the surrealdb backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Portfolio.SnapshotDeltaThreshold < 0 {
		return fmt.Errorf("portfolio.snapshot_delta_threshold must not be negative")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
