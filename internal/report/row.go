// Package report turns per-store uptime integrations into report rows and
// encodes them for delivery.
package report

import (
	"strconv"
	"time"

	"github.com/caevv/storemon/internal/uptime"
)

// Columns is the header of the tabular report, in order.
var Columns = []string{
	"store_id",
	"uptime_last_hour",
	"uptime_last_day",
	"uptime_last_week",
	"downtime_last_hour",
	"downtime_last_day",
	"downtime_last_week",
}

// Row is one store's line of the report. Hour and day values are minutes,
// week values are hours.
type Row struct {
	StoreID          string `json:"store_id"`
	UptimeLastHour   int64  `json:"uptime_last_hour"`
	UptimeLastDay    int64  `json:"uptime_last_day"`
	UptimeLastWeek   int64  `json:"uptime_last_week"`
	DowntimeLastHour int64  `json:"downtime_last_hour"`
	DowntimeLastDay  int64  `json:"downtime_last_day"`
	DowntimeLastWeek int64  `json:"downtime_last_week"`

	// PartialFailure is empty for a clean row. Otherwise it says which input
	// was unusable and which fallback produced the numbers.
	PartialFailure string `json:"partial_failure,omitempty"`
}

// Record returns the row as CSV fields matching Columns.
func (r Row) Record() []string {
	return []string{
		r.StoreID,
		strconv.FormatInt(r.UptimeLastHour, 10),
		strconv.FormatInt(r.UptimeLastDay, 10),
		strconv.FormatInt(r.UptimeLastWeek, 10),
		strconv.FormatInt(r.DowntimeLastHour, 10),
		strconv.FormatInt(r.DowntimeLastDay, 10),
		strconv.FormatInt(r.DowntimeLastWeek, 10),
	}
}

// PartialFailures returns the ids of rows carrying a partial-failure marker,
// in row order.
func PartialFailures(rows []Row) []string {
	var ids []string
	for _, r := range rows {
		if r.PartialFailure != "" {
			ids = append(ids, r.StoreID)
		}
	}
	return ids
}

// Unit returns the output unit of a window: hours for the week window,
// minutes otherwise.
func Unit(w uptime.Window) time.Duration {
	if w.Duration >= uptime.LastWeek.Duration {
		return time.Hour
	}
	return time.Minute
}

// roundHalfUp converts d to a whole number of units, rounding halves up.
func roundHalfUp(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + unit/2) / unit)
}

// StoreResult is the full-precision outcome for one store.
type StoreResult struct {
	Row Row

	// Durations and Eligible are indexed like uptime.Windows.
	Durations []uptime.Durations
	Eligible  []time.Duration
}

// newRow converts window durations into output units. Rounding happens
// once per window on the summed durations: uptime is rounded and downtime
// takes the rest of the rounded total, so the two never add up to more than
// the eligible time.
func newRow(storeID string, durations []uptime.Durations) Row {
	row := Row{StoreID: storeID}
	for i, w := range uptime.Windows {
		up := roundHalfUp(durations[i].Active, Unit(w))
		down := roundHalfUp(durations[i].Total(), Unit(w)) - up
		switch w.Name {
		case uptime.LastHour.Name:
			row.UptimeLastHour, row.DowntimeLastHour = up, down
		case uptime.LastDay.Name:
			row.UptimeLastDay, row.DowntimeLastDay = up, down
		case uptime.LastWeek.Name:
			row.UptimeLastWeek, row.DowntimeLastWeek = up, down
		}
	}
	return row
}
