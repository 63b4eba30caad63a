package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveConfig validates cfg and writes it to path as YAML. The file is
// written next to its destination and renamed into place, so readers never
// see a partial config.
func SaveConfig(cfg *Config, path string) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data := append([]byte(fileHeader), body...)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".storemon-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move config into place: %w", err)
	}
	return nil
}

const fileHeader = `# storemon configuration.
# Every value can be overridden with STOREMON_* environment variables,
# e.g. STOREMON_REPORT_DEFAULT_TIMEZONE or STOREMON_STORE_DRIVER.

`

// NewDefaultConfig creates a Config reading the three CSV tables from the
// working directory and keeping jobs in a local bbolt file.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Data: Data{
			Driver:      "csv",
			StatusCSV:   "store_status.csv",
			HoursCSV:    "business_hours.csv",
			TimezoneCSV: "store_timezones.csv",
		},
	}
	applyDefaults(cfg)
	return cfg
}
