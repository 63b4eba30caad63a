package uptime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // zone data must not depend on the host
)

// DefaultTimezone is used for stores without a timezone row. It matches the
// zone the legacy polling infrastructure assumed.
const DefaultTimezone = "America/Chicago"

const day = 24 * time.Hour

// Date is a calendar day with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// AddDays returns the date n days later (or earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	if d.Year != o.Year {
		return d.Year > o.Year
	}
	if d.Month != o.Month {
		return d.Month > o.Month
	}
	return d.Day > o.Day
}

// Weekday returns the day index with 0 for Monday and 6 for Sunday.
func (d Date) Weekday() int {
	wd := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
	return (int(wd) + 6) % 7
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// at returns the instant with wall clock offset off (which may exceed a day)
// on date d in loc. The wall clock is rebuilt with time.Date so that DST
// transitions are resolved by the zone rules, never by a fixed offset.
func (d Date) at(off time.Duration, loc *time.Location) time.Time {
	days := int(off / day)
	rem := off % day
	h := int(rem / time.Hour)
	m := int(rem % time.Hour / time.Minute)
	s := int(rem % time.Minute / time.Second)
	ns := int(rem % time.Second)
	return time.Date(d.Year, d.Month, d.Day+days, h, m, s, ns, loc)
}

// shift is a local wall-clock range measured from midnight of its start day.
// end may exceed 24h when the shift runs past midnight.
type shift struct {
	start time.Duration
	end   time.Duration
}

// WeeklySchedule is a parsed set of business-hours shifts indexed by weekday.
type WeeklySchedule struct {
	days       [7][]shift
	alwaysOpen bool
}

// AlwaysOpen returns a schedule where every instant is within business hours.
func AlwaysOpen() WeeklySchedule {
	return WeeklySchedule{alwaysOpen: true}
}

// AlwaysOpen reports whether the schedule has no shifts, which means 24/7.
func (w WeeklySchedule) AlwaysOpen() bool {
	return w.alwaysOpen
}

// ParseWeeklySchedule parses the business-hours rows of one store. A store
// without rows is open around the clock.
func ParseWeeklySchedule(storeID string, hours []BusinessHours) (WeeklySchedule, error) {
	if len(hours) == 0 {
		return AlwaysOpen(), nil
	}

	var w WeeklySchedule
	for _, h := range hours {
		if h.DayOfWeek < 0 || h.DayOfWeek > 6 {
			return WeeklySchedule{}, &ScheduleParseError{
				StoreID: storeID,
				Field:   "day_of_week",
				Value:   fmt.Sprint(h.DayOfWeek),
				Err:     errors.New("must be between 0 (Monday) and 6 (Sunday)"),
			}
		}
		start, err := parseClock(h.StartLocal, false)
		if err != nil {
			return WeeklySchedule{}, &ScheduleParseError{StoreID: storeID, Field: "start_time_local", Value: h.StartLocal, Err: err}
		}
		end, err := parseClock(h.EndLocal, true)
		if err != nil {
			return WeeklySchedule{}, &ScheduleParseError{StoreID: storeID, Field: "end_time_local", Value: h.EndLocal, Err: err}
		}
		if end <= start {
			end += day
		}
		w.days[h.DayOfWeek] = append(w.days[h.DayOfWeek], shift{start: start, end: end})
	}

	for i := range w.days {
		sort.Slice(w.days[i], func(a, b int) bool { return w.days[i][a].start < w.days[i][b].start })
	}
	return w, nil
}

// parseClock parses HH:MM or HH:MM:SS (fractional seconds allowed) into an
// offset from local midnight. For end times, 24:00 and 23:59:59 both mean the
// end of the day.
func parseClock(s string, isEnd bool) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time")
	}
	if isEnd {
		switch s {
		case "24:00", "24:00:00", "23:59:59":
			return day, nil
		}
	}

	var t time.Time
	var err error
	if strings.Count(s, ":") == 1 {
		t, err = time.Parse("15:04", s)
	} else {
		t, err = time.Parse("15:04:05", s)
	}
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM[:SS]: %w", err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond()), nil
}

// LoadLocation resolves a store's zone name. An empty name selects
// DefaultTimezone; an unknown name is a ScheduleParseError.
func LoadLocation(storeID, name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &ScheduleParseError{StoreID: storeID, Field: "timezone", Value: name, Err: err}
	}
	return loc, nil
}

// Resolver answers business-hours questions for a single store in UTC.
type Resolver struct {
	storeID  string
	loc      *time.Location
	schedule WeeklySchedule
}

// NewResolver builds a resolver from already parsed inputs. A nil location
// means UTC.
func NewResolver(storeID string, loc *time.Location, schedule WeeklySchedule) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{storeID: storeID, loc: loc, schedule: schedule}
}

// ResolverFor parses the raw inputs of a store and fails on the first
// malformed value.
func ResolverFor(storeID string, tz *StoreTimezone, hours []BusinessHours) (*Resolver, error) {
	name := ""
	if tz != nil {
		name = tz.TimezoneName
	}
	loc, err := LoadLocation(storeID, name)
	if err != nil {
		return nil, err
	}
	schedule, err := ParseWeeklySchedule(storeID, hours)
	if err != nil {
		return nil, err
	}
	return NewResolver(storeID, loc, schedule), nil
}

// StoreID returns the store the resolver was built for.
func (r *Resolver) StoreID() string { return r.storeID }

// Location returns the store's zone.
func (r *Resolver) Location() *time.Location { return r.loc }

// AlwaysOpen reports whether every instant is within business hours.
func (r *Resolver) AlwaysOpen() bool { return r.schedule.alwaysOpen }

// BusinessIntervalsUTC returns the business intervals that start on the given
// local date, converted to UTC, sorted and merged. A shift that runs past
// midnight stays one contiguous interval ending on the next day.
func (r *Resolver) BusinessIntervalsUTC(date Date) []Interval {
	if r.schedule.alwaysOpen {
		return []Interval{{
			Start: date.at(0, r.loc).UTC(),
			End:   date.at(day, r.loc).UTC(),
		}}
	}

	shifts := r.schedule.days[date.Weekday()]
	out := make([]Interval, 0, len(shifts))
	for _, s := range shifts {
		out = append(out, Interval{
			Start: date.at(s.start, r.loc).UTC(),
			End:   date.at(s.end, r.loc).UTC(),
		})
	}
	return Merge(out)
}

// IsOpen reports whether t falls within business hours. Shifts from the
// previous local day are considered since they may run past midnight.
func (r *Resolver) IsOpen(t time.Time) bool {
	if r.schedule.alwaysOpen {
		return true
	}
	today := DateOf(t.In(r.loc))
	for _, d := range []Date{today.AddDays(-1), today} {
		for _, iv := range r.BusinessIntervalsUTC(d) {
			if iv.Contains(t) {
				return true
			}
		}
	}
	return false
}
