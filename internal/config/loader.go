package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/caevv/storemon/internal/datastore"
	"github.com/caevv/storemon/internal/logging"
	"github.com/caevv/storemon/internal/report"
	"github.com/caevv/storemon/internal/scheduler"
	"github.com/caevv/storemon/internal/store"
	"github.com/caevv/storemon/internal/uptime"
)

// EnvPrefix prefixes every environment override, e.g. STOREMON_DATA_DSN.
const EnvPrefix = "STOREMON_"

// DefaultPath is the config file used when none is given.
const DefaultPath = "storemon.yaml"

// LoadConfig loads a YAML config file, applies environment overrides and
// defaults, then validates the result. A .env file in the working directory
// is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides fields from STOREMON_* variables. Unset variables leave
// the YAML value alone.
func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	cfg.Data.Driver = strings.ToLower(strings.TrimSpace(cfg.Data.Driver))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if cfg.Data.Driver == "" {
		cfg.Data.Driver = "csv"
	}
	if cfg.Data.Driver == "csv" && cfg.Data.StatusCSV == "" {
		cfg.Data.StatusCSV = "store_status.csv"
	}

	if cfg.Report.DefaultTimezone == "" {
		cfg.Report.DefaultTimezone = uptime.DefaultTimezone
	}
	if cfg.Report.LeadingGap == "" {
		cfg.Report.LeadingGap = uptime.AssumeInactive.String()
	}
	if cfg.Report.MaxConcurrentJobs == 0 {
		cfg.Report.MaxConcurrentJobs = 1
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = string(report.FormatCSV)
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "."
	}
	if cfg.Report.Retention == 0 {
		cfg.Report.Retention = 30 * 24 * time.Hour
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bbolt"
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Driver {
		case "json":
			cfg.Store.Path = "./.storemon.json"
		case "redis":
			cfg.Store.Path = "redis://localhost:6379/0"
		default:
			cfg.Store.Path = "./.storemon.db"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.TriggerBurst == 0 {
		cfg.Server.TriggerBurst = 5
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
}

// validate checks the configuration for errors and inconsistencies.
func validate(cfg *Config) error {
	if !slices.Contains(datastore.SupportedDrivers, cfg.Data.Driver) {
		return fmt.Errorf("invalid data driver: %s (must be one of %v)", cfg.Data.Driver, datastore.SupportedDrivers)
	}
	switch cfg.Data.Driver {
	case "csv":
		if cfg.Data.StatusCSV == "" {
			return fmt.Errorf("data.status_csv is required for the csv driver")
		}
	case "postgres":
		if cfg.Data.DSN == "" {
			return fmt.Errorf("data.dsn is required for the postgres driver")
		}
	}

	if _, err := time.LoadLocation(cfg.Report.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid report.default_timezone: %w", err)
	}
	if _, err := uptime.ParseLeadingGapPolicy(cfg.Report.LeadingGap); err != nil {
		return fmt.Errorf("invalid report.leading_gap: %w", err)
	}
	if cfg.Report.Workers < 0 {
		return fmt.Errorf("report.workers must be non-negative")
	}
	if cfg.Report.MaxConcurrentJobs < 0 {
		return fmt.Errorf("report.max_concurrent_jobs must be non-negative")
	}
	if _, err := report.ParseFormat(cfg.Report.Format); err != nil {
		return fmt.Errorf("invalid report.format: %w", err)
	}
	if cfg.Report.Schedule != "" {
		if err := scheduler.ValidateSchedule(cfg.Report.Schedule); err != nil {
			return fmt.Errorf("invalid report.schedule: %w", err)
		}
	}
	if cfg.Report.Retention < 0 {
		return fmt.Errorf("report.retention must be non-negative")
	}

	if !slices.Contains(store.SupportedDrivers, cfg.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (must be one of %v)", cfg.Store.Driver, store.SupportedDrivers)
	}

	if cfg.Server.TriggerRate < 0 {
		return fmt.Errorf("server.trigger_rate must be non-negative")
	}
	if cfg.Server.TriggerBurst < 0 {
		return fmt.Errorf("server.trigger_burst must be non-negative")
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be 'json' or 'text')", cfg.Logging.Format)
	}

	return nil
}
