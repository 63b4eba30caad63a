// Package uptime estimates how long a store was active or inactive during its
// business hours from sparse, irregular status polls.
//
// The package is pure computation: it never performs I/O. Callers supply the
// observations, the weekly business-hours schedule and the store timezone, and
// get back eligible UTC intervals and integrated active/inactive durations.
package uptime

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the result of a single poll.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus parses a poll status, ignoring case and surrounding spaces.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Observation is one timestamped poll result for a store.
type Observation struct {
	StoreID   string    `json:"store_id"`
	Timestamp time.Time `json:"timestamp_utc"`
	Status    Status    `json:"status"`

	// Seq is the ingestion order. It breaks ties between observations that
	// share a timestamp: the higher Seq wins.
	Seq int64 `json:"seq"`
}

// BusinessHours is one local-time shift of a store on a weekday.
// DayOfWeek uses 0 for Monday through 6 for Sunday.
type BusinessHours struct {
	StoreID    string `json:"store_id"`
	DayOfWeek  int    `json:"day_of_week"`
	StartLocal string `json:"start_time_local"`
	EndLocal   string `json:"end_time_local"`
}

// StoreTimezone maps a store to an IANA zone name.
type StoreTimezone struct {
	StoreID      string `json:"store_id"`
	TimezoneName string `json:"timezone_str"`
}

// SortObservations orders observations by timestamp, then by ingestion order.
func SortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].Timestamp.Equal(obs[j].Timestamp) {
			return obs[i].Timestamp.Before(obs[j].Timestamp)
		}
		return obs[i].Seq < obs[j].Seq
	})
}

// Interval is a half-open UTC time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End-Start, or zero for an empty interval.
func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Empty reports whether the interval contains no instant.
func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Intersect returns the overlap of two intervals.
func (i Interval) Intersect(o Interval) (Interval, bool) {
	start := i.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := i.End
	if o.End.Before(end) {
		end = o.End
	}
	out := Interval{Start: start, End: end}
	if out.Empty() {
		return Interval{}, false
	}
	return out, true
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.UTC().Format(time.RFC3339), i.End.UTC().Format(time.RFC3339))
}

// Merge sorts intervals and joins the ones that overlap or touch. Empty
// intervals are dropped.
func Merge(intervals []Interval) []Interval {
	in := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.Empty() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sort.Slice(in, func(a, b int) bool { return in[a].Start.Before(in[b].Start) })

	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// TotalDuration sums the durations of the given intervals.
func TotalDuration(intervals []Interval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}
