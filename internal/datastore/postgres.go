package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/caevv/storemon/internal/uptime"
)

const schema = `
CREATE TABLE IF NOT EXISTS store_status (
	id            BIGSERIAL PRIMARY KEY,
	store_id      TEXT NOT NULL,
	status        TEXT NOT NULL,
	timestamp_utc TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS store_status_store_ts_idx ON store_status (store_id, timestamp_utc, id);

CREATE TABLE IF NOT EXISTS business_hours (
	id               BIGSERIAL PRIMARY KEY,
	store_id         TEXT NOT NULL,
	day_of_week      INTEGER NOT NULL,
	start_time_local TEXT NOT NULL,
	end_time_local   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS business_hours_store_idx ON business_hours (store_id);

CREATE TABLE IF NOT EXISTS store_timezones (
	store_id     TEXT PRIMARY KEY,
	timezone_str TEXT NOT NULL
);
`

// Postgres reads the dataset from ingested tables. The id column of
// store_status records ingestion order and breaks timestamp ties.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenPostgres connects through the pgx stdlib driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPostgres(db, logger), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Migrate creates the tables when they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// ObservationsFor implements DataStore.
func (p *Postgres) ObservationsFor(ctx context.Context, storeID string, r TimeRange) ([]uptime.Observation, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT id, status, timestamp_utc
FROM store_status
WHERE store_id = $1 AND timestamp_utc >= $2 AND timestamp_utc <= $3
ORDER BY timestamp_utc, id`, storeID, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", storeID, err)
	}
	defer rows.Close()

	var out []uptime.Observation
	for rows.Next() {
		var r rawObservation
		if err := rows.Scan(&r.id, &r.status, &r.ts); err != nil {
			return nil, fmt.Errorf("scan observation for %s: %w", storeID, err)
		}
		o, err := r.observation(storeID)
		if err != nil {
			p.logger.Warn("skipping stored observation", "store_id", storeID, "id", r.id, "error", err)
			continue
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rawObservation struct {
	id     int64
	status string
	ts     time.Time
}

func (r rawObservation) observation(storeID string) (uptime.Observation, error) {
	st, err := uptime.ParseStatus(r.status)
	if err != nil {
		return uptime.Observation{}, err
	}
	return uptime.Observation{StoreID: storeID, Timestamp: r.ts.UTC(), Status: st, Seq: r.id}, nil
}

// SeedObservation implements DataStore. Rows with an unknown status are
// skipped like in ObservationsFor, so the seed is the latest usable poll.
func (p *Postgres) SeedObservation(ctx context.Context, storeID string, before time.Time) (*uptime.Observation, error) {
	var r rawObservation
	err := p.db.QueryRowContext(ctx, `
SELECT id, status, timestamp_utc
FROM store_status
WHERE store_id = $1 AND timestamp_utc < $2
  AND lower(trim(status)) IN ('active', 'inactive')
ORDER BY timestamp_utc DESC, id DESC
LIMIT 1`, storeID, before.UTC()).Scan(&r.id, &r.status, &r.ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query seed for %s: %w", storeID, err)
	}
	o, err := r.observation(storeID)
	if err != nil {
		return nil, fmt.Errorf("seed for %s: %w", storeID, err)
	}
	return &o, nil
}

// BusinessHoursFor implements DataStore.
func (p *Postgres) BusinessHoursFor(ctx context.Context, storeID string) ([]uptime.BusinessHours, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT day_of_week, start_time_local, end_time_local
FROM business_hours
WHERE store_id = $1
ORDER BY id`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query business hours for %s: %w", storeID, err)
	}
	defer rows.Close()

	var out []uptime.BusinessHours
	for rows.Next() {
		h := uptime.BusinessHours{StoreID: storeID}
		if err := rows.Scan(&h.DayOfWeek, &h.StartLocal, &h.EndLocal); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TimezoneFor implements DataStore.
func (p *Postgres) TimezoneFor(ctx context.Context, storeID string) (*uptime.StoreTimezone, error) {
	tz := uptime.StoreTimezone{StoreID: storeID}
	err := p.db.QueryRowContext(ctx,
		`SELECT timezone_str FROM store_timezones WHERE store_id = $1`, storeID,
	).Scan(&tz.TimezoneName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query timezone for %s: %w", storeID, err)
	}
	return &tz, nil
}

// AllStoreIDs implements DataStore.
func (p *Postgres) AllStoreIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT store_id FROM store_status
UNION
SELECT store_id FROM business_hours
UNION
SELECT store_id FROM store_timezones
ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("query store ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestObservationInstant implements DataStore.
func (p *Postgres) LatestObservationInstant(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullTime
	if err := p.db.QueryRowContext(ctx, `SELECT max(timestamp_utc) FROM store_status`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest observation: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ingest appends a dataset inside a single transaction. Observations keep
// their slice order, which becomes their tie-break order. Timezone rows
// replace existing ones.
func (p *Postgres) Ingest(ctx context.Context, ds Dataset) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := insertAll(ctx, tx,
		`INSERT INTO store_status (store_id, status, timestamp_utc) VALUES ($1, $2, $3)`,
		len(ds.Observations), func(i int) []any {
			o := ds.Observations[i]
			return []any{o.StoreID, string(o.Status), o.Timestamp.UTC()}
		}); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert observations: %w", err)
	}

	if err := insertAll(ctx, tx,
		`INSERT INTO business_hours (store_id, day_of_week, start_time_local, end_time_local) VALUES ($1, $2, $3, $4)`,
		len(ds.BusinessHours), func(i int) []any {
			h := ds.BusinessHours[i]
			return []any{h.StoreID, h.DayOfWeek, h.StartLocal, h.EndLocal}
		}); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert business hours: %w", err)
	}

	if err := insertAll(ctx, tx, `
INSERT INTO store_timezones (store_id, timezone_str) VALUES ($1, $2)
ON CONFLICT (store_id) DO UPDATE SET timezone_str = EXCLUDED.timezone_str`,
		len(ds.Timezones), func(i int) []any {
			tz := ds.Timezones[i]
			return []any{tz.StoreID, tz.TimezoneName}
		}); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert timezones: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	p.logger.Info("dataset ingested",
		"observations", len(ds.Observations),
		"business_hours", len(ds.BusinessHours),
		"timezones", len(ds.Timezones),
	)
	return nil
}

func insertAll(ctx context.Context, tx *sql.Tx, query string, n int, args func(int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}
