// Package config loads the storemon YAML configuration with environment
// overrides.
package config

import "time"

// Config represents the top-level configuration structure for storemon.
type Config struct {
	Data    Data    `yaml:"data" envPrefix:"DATA_"`
	Report  Report  `yaml:"report" envPrefix:"REPORT_"`
	Store   Store   `yaml:"store" envPrefix:"STORE_"`
	Server  Server  `yaml:"server" envPrefix:"SERVER_"`
	Logging Logging `yaml:"logging" envPrefix:"LOG_"`
}

// Data selects where observations, business hours and timezones are read.
type Data struct {
	Driver      string `yaml:"driver" env:"DRIVER"`             // "csv" or "postgres"
	StatusCSV   string `yaml:"status_csv" env:"STATUS_CSV"`     // csv driver: store_status table
	HoursCSV    string `yaml:"hours_csv" env:"HOURS_CSV"`       // csv driver: business_hours table, optional
	TimezoneCSV string `yaml:"timezone_csv" env:"TIMEZONE_CSV"` // csv driver: store_timezones table, optional
	DSN         string `yaml:"dsn" env:"DSN"`                   // postgres driver
}

// Report tunes report computation and output.
type Report struct {
	DefaultTimezone   string        `yaml:"default_timezone" env:"DEFAULT_TIMEZONE"`
	LeadingGap        string        `yaml:"leading_gap" env:"LEADING_GAP"` // "inactive" or "active"
	Workers           int           `yaml:"workers" env:"WORKERS"`         // 0 means GOMAXPROCS
	MaxConcurrentJobs int64         `yaml:"max_concurrent_jobs" env:"MAX_CONCURRENT_JOBS"`
	Format            string        `yaml:"format" env:"FORMAT"`         // file format of the report command
	OutputDir         string        `yaml:"output_dir" env:"OUTPUT_DIR"` // where the report command writes files
	Schedule          string        `yaml:"schedule" env:"SCHEDULE"`     // optional periodic trigger in serve mode
	Retention         time.Duration `yaml:"retention" env:"RETENTION"`   // finished reports older than this are purged
}

// Store configuration for report job persistence.
type Store struct {
	Driver string `yaml:"driver" env:"DRIVER"` // "bbolt", "json" or "redis"
	Path   string `yaml:"path" env:"PATH"`     // file path, or redis:// URL
}

// Server configuration for the HTTP surface.
type Server struct {
	Addr         string  `yaml:"addr" env:"ADDR"`
	TriggerRate  float64 `yaml:"trigger_rate" env:"TRIGGER_RATE"` // triggers per second, 0 disables limiting
	TriggerBurst int     `yaml:"trigger_burst" env:"TRIGGER_BURST"`
}

// Logging configuration.
type Logging struct {
	Format string `yaml:"format" env:"FORMAT"` // "json" or "text"
	Level  string `yaml:"level" env:"LEVEL"`
	Output string `yaml:"output" env:"OUTPUT"` // "stderr", "stdout", "discard" or a file path
}
