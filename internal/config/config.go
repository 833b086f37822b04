//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-starload.
// Configuration is loaded from a config file and CLI flags. The only
// environment input is the connection string, which may come from
// STARLOAD_CONNECTION or a .env file. CLI flags take precedence over config
// file values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pgEdge/pgedge-starload/internal/logging"
)

// ConnectionEnv names the environment variable consulted when no
// connection string is configured.
const ConnectionEnv = "STARLOAD_CONNECTION"

// Config holds all configuration for pgedge-starload.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "console" or "json".
	LogFormat string `mapstructure:"log_format"`

	// Sources lists the regional sales feeds to union.
	Sources []SourceConfig `mapstructure:"sources"`

	// Init holds configuration for the init subcommand.
	Init InitConfig `mapstructure:"init"`

	// Pipeline holds configuration for the run subcommand.
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Metrics controls where run metrics are published.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Seed holds configuration for the seed subcommand.
	Seed SeedConfig `mapstructure:"seed"`
}

// SourceConfig describes one regional sales feed table.
type SourceConfig struct {
	Name        string  `mapstructure:"name"`
	Table       string  `mapstructure:"table"`
	Country     string  `mapstructure:"country"`
	Region      string  `mapstructure:"region"`
	Currency    string  `mapstructure:"currency"`
	USDRate     float64 `mapstructure:"usd_rate"`
	Description string  `mapstructure:"description"`
}

// InitConfig holds configuration for schema initialization.
type InitConfig struct {
	// DropExisting rolls every migration down before applying them.
	DropExisting bool `mapstructure:"drop_existing"`
}

// PipelineConfig holds configuration for a pipeline run.
type PipelineConfig struct {
	// MaxParallel bounds concurrent dimension builds.
	MaxParallel int `mapstructure:"max_parallel"`

	// Timeout bounds the whole run in seconds (0 = none).
	Timeout int `mapstructure:"timeout"`

	// SkipLoadedOrders skips sales records already present in the fact
	// table.
	SkipLoadedOrders bool `mapstructure:"skip_loaded_orders"`

	// RecordRuns writes each run's report to the run history table.
	RecordRuns bool `mapstructure:"record_runs"`
}

// MetricsConfig holds configuration for metrics publication.
type MetricsConfig struct {
	// PushgatewayURL, when set, receives run metrics after each run.
	PushgatewayURL string `mapstructure:"pushgateway_url"`

	// TextfilePath, when set, receives run metrics in text exposition
	// format for the node exporter textfile collector.
	TextfilePath string `mapstructure:"textfile_path"`

	// JobName is the pushgateway job label.
	JobName string `mapstructure:"job_name"`
}

// SeedConfig holds configuration for synthetic feed generation.
type SeedConfig struct {
	// OrdersPerSource is the number of orders generated per feed.
	OrdersPerSource int `mapstructure:"orders_per_source"`

	// StartDate is the first order date (YYYY-MM-DD). Empty means Days
	// before today.
	StartDate string `mapstructure:"start_date"`

	// Days is the span of order dates.
	Days int `mapstructure:"days"`

	// Seed makes generation reproducible (0 = random).
	Seed int64 `mapstructure:"seed"`
}

// DefaultSources returns the IN, US and FR feeds.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:        "in",
			Table:       "in_sales_order",
			Country:     "IN",
			Region:      "APAC",
			Currency:    "INR",
			USDRate:     0.012,
			Description: "India curated sales orders",
		},
		{
			Name:        "us",
			Table:       "us_sales_order",
			Country:     "US",
			Region:      "NA",
			Currency:    "USD",
			USDRate:     1,
			Description: "United States curated sales orders",
		},
		{
			Name:        "fr",
			Table:       "fr_sales_order",
			Country:     "FR",
			Region:      "EU",
			Currency:    "EUR",
			USDRate:     1.08,
			Description: "France curated sales orders",
		},
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: logging.FormatConsole,
		Pipeline: PipelineConfig{
			MaxParallel:      6,
			SkipLoadedOrders: true,
			RecordRuns:       true,
		},
		Metrics: MetricsConfig{
			JobName: "pgedge_starload",
		},
		Seed: SeedConfig{
			OrdersPerSource: 1000,
			Days:            90,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-starload.yaml
// 3. ~/.config/pgedge-starload/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-starload")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-starload"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Sources are defaulted after unmarshalling so a configured list
	// replaces the defaults instead of merging into them.
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}

	if cfg.Connection == "" {
		cfg.Connection = os.Getenv(ConnectionEnv)
	}

	return cfg, nil
}

// LoadEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error reading %s: %w", f, err)
		}
	}
	return nil
}

// SourceTables returns the table of every configured source.
func (c *Config) SourceTables() []string {
	tables := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		tables[i] = s.Table
	}
	return tables
}

// RunTimeout returns the pipeline timeout, or zero for none.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Pipeline.Timeout) * time.Second
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	if c.LogFormat != "" && !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("log_format must be 'console' or 'json'")
	}
	return nil
}

// ValidateSources checks the configured feeds.
func (c *Config) ValidateSources() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	names := make(map[string]bool, len(c.Sources))
	tables := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i+1)
		}
		if s.Table == "" {
			return fmt.Errorf("source %s: table is required", s.Name)
		}
		if names[s.Name] {
			return fmt.Errorf("source %s is configured more than once", s.Name)
		}
		if tables[s.Table] {
			return fmt.Errorf("table %s is used by more than one source", s.Table)
		}
		names[s.Name] = true
		tables[s.Table] = true
	}
	return nil
}

// ValidateInit checks configuration required for init command.
func (c *Config) ValidateInit() error {
	return c.Validate()
}

// ValidateRun checks configuration required for run command.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.ValidateSources(); err != nil {
		return err
	}
	if c.Pipeline.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1")
	}
	if c.Pipeline.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.JobName == "" {
		return fmt.Errorf("job_name is required when pushgateway_url is set")
	}
	return nil
}

// ValidateSeed checks configuration required for seed command.
func (c *Config) ValidateSeed() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.ValidateSources(); err != nil {
		return err
	}
	for _, s := range c.Sources {
		if s.Country == "" || s.Region == "" || s.Currency == "" {
			return fmt.Errorf("source %s: country, region and currency are required for seeding", s.Name)
		}
		if s.USDRate <= 0 {
			return fmt.Errorf("source %s: usd_rate must be positive", s.Name)
		}
	}
	if c.Seed.OrdersPerSource < 1 {
		return fmt.Errorf("orders_per_source must be at least 1")
	}
	if c.Seed.Days < 1 {
		return fmt.Errorf("days must be at least 1")
	}
	if c.Seed.StartDate != "" {
		if _, err := time.Parse("2006-01-02", c.Seed.StartDate); err != nil {
			return fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)
		}
	}
	return nil
}
