// Package datastore provides read access to store polls, business hours and
// timezones for the uptime engine.
package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caevv/storemon/internal/uptime"
)

// TimeRange is an inclusive UTC range [From, To].
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t is within the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// DataStore is the read-only view of the ingested dataset.
type DataStore interface {
	// ObservationsFor returns the polls of a store within r, ordered by
	// timestamp then ingestion order.
	ObservationsFor(ctx context.Context, storeID string, r TimeRange) ([]uptime.Observation, error)

	// SeedObservation returns the latest poll strictly before the given
	// instant, or nil when there is none.
	SeedObservation(ctx context.Context, storeID string, before time.Time) (*uptime.Observation, error)

	// BusinessHoursFor returns the raw business-hours rows of a store.
	BusinessHoursFor(ctx context.Context, storeID string) ([]uptime.BusinessHours, error)

	// TimezoneFor returns the timezone row of a store, or nil when absent.
	TimezoneFor(ctx context.Context, storeID string) (*uptime.StoreTimezone, error)

	// AllStoreIDs returns every store present in any table, sorted.
	AllStoreIDs(ctx context.Context) ([]string, error)

	// LatestObservationInstant returns the newest poll timestamp across the
	// dataset. ok is false when there are no polls.
	LatestObservationInstant(ctx context.Context) (t time.Time, ok bool, err error)

	// Close releases any resources held by the store.
	Close() error
}

// Options selects and configures a DataStore driver.
type Options struct {
	// Driver is "csv" or "postgres".
	Driver string

	StatusCSV   string
	HoursCSV    string
	TimezoneCSV string

	DSN string

	Logger *slog.Logger
}

// SupportedDrivers lists all available data drivers.
var SupportedDrivers = []string{"csv", "postgres"}

// Open creates a DataStore for the configured driver.
//   - "csv": loads the three CSV exports into memory
//   - "postgres": queries ingested tables through pgx
func Open(ctx context.Context, opts Options) (DataStore, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch driver {
	case "csv":
		if opts.StatusCSV == "" {
			return nil, fmt.Errorf("status csv path is required")
		}
		m, err := LoadCSVFiles(opts.StatusCSV, opts.HoursCSV, opts.TimezoneCSV, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "postgres":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		pg, err := OpenPostgres(ctx, opts.DSN, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported data driver: %s (supported: %v)", driver, SupportedDrivers)
	}
}
