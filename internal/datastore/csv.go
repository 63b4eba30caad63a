package datastore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caevv/storemon/internal/uptime"
)

// timestampLayouts are tried in order when parsing timestamp_utc values.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999 MST",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

// ParseTimestamp parses a poll timestamp and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// LoadCSVFiles reads the three CSV exports into a Memory store. Only the
// status file is required; empty paths for hours or timezones are skipped.
func LoadCSVFiles(statusPath, hoursPath, tzPath string, logger *slog.Logger) (*Memory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ds, err := ReadDataset(statusPath, hoursPath, tzPath, logger)
	if err != nil {
		return nil, err
	}

	m := NewMemory()
	for _, o := range ds.Observations {
		m.AddObservation(o)
	}
	for _, h := range ds.BusinessHours {
		m.AddBusinessHours(h)
	}
	for _, tz := range ds.Timezones {
		m.SetTimezone(tz)
	}

	ids, _ := m.AllStoreIDs(context.Background())
	logger.Info("csv dataset loaded",
		"status_file", statusPath,
		"stores", len(ids),
		"observations", len(ds.Observations),
	)
	return m, nil
}

// Dataset is a parsed batch of the three exports.
type Dataset struct {
	Observations  []uptime.Observation
	BusinessHours []uptime.BusinessHours
	Timezones     []uptime.StoreTimezone
}

// ReadDataset parses the three CSV exports for ingestion. Empty paths for
// hours or timezones are skipped.
func ReadDataset(statusPath, hoursPath, tzPath string, logger *slog.Logger) (Dataset, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var ds Dataset
	err := readFile(statusPath, func(r io.Reader) error {
		var err error
		ds.Observations, err = ReadObservations(r, logger)
		return err
	})
	if err != nil {
		return Dataset{}, err
	}
	if hoursPath != "" {
		if err := readFile(hoursPath, func(r io.Reader) error {
			var err error
			ds.BusinessHours, err = ReadBusinessHours(r, logger)
			return err
		}); err != nil {
			return Dataset{}, err
		}
	}
	if tzPath != "" {
		if err := readFile(tzPath, func(r io.Reader) error {
			var err error
			ds.Timezones, err = ReadTimezones(r, logger)
			return err
		}); err != nil {
			return Dataset{}, err
		}
	}
	return ds, nil
}

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// header maps column names to indexes. Names are matched case-insensitively.
type header map[string]int

func readHeader(cr *csv.Reader) (header, error) {
	row, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}
	h := make(header, len(row))
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	return h, nil
}

// index returns the position of the first matching column name.
func (h header) index(names ...string) (int, error) {
	for _, n := range names {
		if i, ok := h[strings.ToLower(n)]; ok {
			return i, nil
		}
	}
	return 0, fmt.Errorf("missing column %q", names[0])
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

// ReadObservations parses the status CSV (store_id, status, timestamp_utc).
// Rows with an unknown status or timestamp are skipped with a warning.
// Observations are returned in file order with Seq left unset.
func ReadObservations(r io.Reader, logger *slog.Logger) ([]uptime.Observation, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.index("store_id")
	if err != nil {
		return nil, err
	}
	statusCol, err := h.index("status")
	if err != nil {
		return nil, err
	}
	tsCol, err := h.index("timestamp_utc", "timestamp")
	if err != nil {
		return nil, err
	}

	var out []uptime.Observation
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id := field(row, idCol)
		status, err := uptime.ParseStatus(field(row, statusCol))
		if err != nil || id == "" {
			logger.Warn("skipping status row", "line", line, "store_id", id, "status", field(row, statusCol))
			continue
		}
		ts, err := ParseTimestamp(field(row, tsCol))
		if err != nil {
			logger.Warn("skipping status row", "line", line, "store_id", id, "error", err)
			continue
		}
		out = append(out, uptime.Observation{StoreID: id, Timestamp: ts, Status: status})
	}
	return out, nil
}

// ReadBusinessHours parses the business-hours CSV (store_id, dayOfWeek,
// start_time_local, end_time_local). A malformed weekday is kept as -1 so the
// store surfaces a schedule error instead of silently losing a shift.
func ReadBusinessHours(r io.Reader, logger *slog.Logger) ([]uptime.BusinessHours, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.index("store_id")
	if err != nil {
		return nil, err
	}
	dayCol, err := h.index("dayofweek", "day_of_week", "day")
	if err != nil {
		return nil, err
	}
	startCol, err := h.index("start_time_local")
	if err != nil {
		return nil, err
	}
	endCol, err := h.index("end_time_local")
	if err != nil {
		return nil, err
	}

	var out []uptime.BusinessHours
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id := field(row, idCol)
		if id == "" {
			logger.Warn("skipping business hours row without store_id", "line", line)
			continue
		}
		dow, err := strconv.Atoi(field(row, dayCol))
		if err != nil {
			logger.Warn("invalid day of week", "line", line, "store_id", id, "value", field(row, dayCol))
			dow = -1
		}
		out = append(out, uptime.BusinessHours{
			StoreID:    id,
			DayOfWeek:  dow,
			StartLocal: field(row, startCol),
			EndLocal:   field(row, endCol),
		})
	}
	return out, nil
}

// ReadTimezones parses the timezone CSV (store_id, timezone_str).
func ReadTimezones(r io.Reader, logger *slog.Logger) ([]uptime.StoreTimezone, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.index("store_id")
	if err != nil {
		return nil, err
	}
	tzCol, err := h.index("timezone_str", "timezone")
	if err != nil {
		return nil, err
	}

	var out []uptime.StoreTimezone
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		id := field(row, idCol)
		if id == "" {
			logger.Warn("skipping timezone row without store_id", "line", line)
			continue
		}
		out = append(out, uptime.StoreTimezone{StoreID: id, TimezoneName: field(row, tzCol)})
	}
	return out, nil
}
