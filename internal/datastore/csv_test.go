package datastore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caevv/storemon/internal/uptime"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2023-01-22 12:09:39.388884 UTC", want: "2023-01-22T12:09:39.388884Z"},
		{in: "2023-01-22 12:09:39 UTC", want: "2023-01-22T12:09:39Z"},
		{in: "2023-01-22 12:09:39", want: "2023-01-22T12:09:39Z"},
		{in: "2023-01-22T12:09:39Z", want: "2023-01-22T12:09:39Z"},
		{in: "2023-01-22T06:09:39-06:00", want: "2023-01-22T12:09:39Z"},
		{in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Format(time.RFC3339Nano) != tt.want {
				t.Errorf("ParseTimestamp() = %v, want %v", got.Format(time.RFC3339Nano), tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseTimestamp() location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestReadObservations_SkipsBadRows(t *testing.T) {
	in := `store_id,status,timestamp_utc
s1,active,2023-01-22 12:09:39.388884 UTC
s1,unknown,2023-01-22 12:10:00 UTC
s2,inactive,not-a-time
,active,2023-01-22 12:10:00 UTC
s2,INACTIVE,2023-01-22 13:00:00 UTC
`
	obs, err := ReadObservations(strings.NewReader(in), discardLogger())
	if err != nil {
		t.Fatalf("ReadObservations() error = %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("ReadObservations() returned %d rows, want 2", len(obs))
	}
	if obs[0].StoreID != "s1" || obs[0].Status != uptime.StatusActive {
		t.Errorf("row 0 = %+v", obs[0])
	}
	if obs[1].StoreID != "s2" || obs[1].Status != uptime.StatusInactive {
		t.Errorf("row 1 = %+v", obs[1])
	}
}

func TestReadObservations_MissingColumn(t *testing.T) {
	_, err := ReadObservations(strings.NewReader("store_id,timestamp_utc\n"), discardLogger())
	if err == nil {
		t.Error("ReadObservations() expected error for missing status column")
	}
}

func TestReadBusinessHours(t *testing.T) {
	in := `store_id,dayOfWeek,start_time_local,end_time_local
s1,0,09:00:00,17:00:00
s1,x,09:00:00,17:00:00
`
	hours, err := ReadBusinessHours(strings.NewReader(in), discardLogger())
	if err != nil {
		t.Fatalf("ReadBusinessHours() error = %v", err)
	}
	if len(hours) != 2 {
		t.Fatalf("ReadBusinessHours() returned %d rows, want 2", len(hours))
	}
	if hours[0].DayOfWeek != 0 || hours[0].StartLocal != "09:00:00" || hours[0].EndLocal != "17:00:00" {
		t.Errorf("row 0 = %+v", hours[0])
	}
	if hours[1].DayOfWeek != -1 {
		t.Errorf("malformed weekday = %d, want -1", hours[1].DayOfWeek)
	}

	// The malformed row must surface as a schedule error.
	if _, err := uptime.ParseWeeklySchedule("s1", hours); err == nil {
		t.Error("ParseWeeklySchedule() expected error for malformed weekday")
	}
}

func TestReadBusinessHours_AlternateHeader(t *testing.T) {
	in := "store_id,day,start_time_local,end_time_local\ns1,6,22:00,02:00\n"
	hours, err := ReadBusinessHours(strings.NewReader(in), discardLogger())
	if err != nil {
		t.Fatalf("ReadBusinessHours() error = %v", err)
	}
	if len(hours) != 1 || hours[0].DayOfWeek != 6 {
		t.Errorf("ReadBusinessHours() = %+v", hours)
	}
}

func TestLoadCSVFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		return p
	}

	status := write("store_status.csv", "\ufeffstore_id,status,timestamp_utc\n"+
		"s1,active,2023-01-25 10:00:00 UTC\n"+
		"s1,inactive,2023-01-25 11:00:00 UTC\n")
	hours := write("menu_hours.csv", "store_id,dayOfWeek,start_time_local,end_time_local\n"+
		"s2,2,09:00:00,17:00:00\n")
	tz := write("timezones.csv", "store_id,timezone_str\n"+
		"s1,America/New_York\n")

	m, err := LoadCSVFiles(status, hours, tz, discardLogger())
	if err != nil {
		t.Fatalf("LoadCSVFiles() error = %v", err)
	}
	ctx := context.Background()

	ids, _ := m.AllStoreIDs(ctx)
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Errorf("AllStoreIDs() = %v, want [s1 s2]", ids)
	}
	latest, ok, _ := m.LatestObservationInstant(ctx)
	if !ok || !latest.Equal(ts("2023-01-25T11:00:00Z")) {
		t.Errorf("LatestObservationInstant() = %v, %v", latest, ok)
	}
	zone, _ := m.TimezoneFor(ctx, "s1")
	if zone == nil || zone.TimezoneName != "America/New_York" {
		t.Errorf("TimezoneFor(s1) = %v", zone)
	}
}

func TestLoadCSVFiles_OptionalFiles(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "status.csv")
	if err := os.WriteFile(status, []byte("store_id,status,timestamp_utc\ns1,active,2023-01-25 10:00:00 UTC\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := LoadCSVFiles(status, "", "", discardLogger()); err != nil {
		t.Errorf("LoadCSVFiles() error = %v", err)
	}
	if _, err := LoadCSVFiles(filepath.Join(dir, "missing.csv"), "", "", discardLogger()); err == nil {
		t.Error("LoadCSVFiles() expected error for missing status file")
	}
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Driver: "mysql"}); err == nil {
		t.Error("Open() expected error for unsupported driver")
	}
	if _, err := Open(ctx, Options{Driver: "csv"}); err == nil {
		t.Error("Open() expected error without status csv")
	}
	if _, err := Open(ctx, Options{Driver: "postgres"}); err == nil {
		t.Error("Open() expected error without dsn")
	}
}
