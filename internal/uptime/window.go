package uptime

import "time"

// Window is a trailing analysis window ending at the reference instant.
type Window struct {
	Name     string
	Duration time.Duration
}

var (
	LastHour = Window{Name: "last_hour", Duration: time.Hour}
	LastDay  = Window{Name: "last_day", Duration: 24 * time.Hour}
	LastWeek = Window{Name: "last_week", Duration: 7 * 24 * time.Hour}
)

// Windows lists the report windows from shortest to longest.
var Windows = []Window{LastHour, LastDay, LastWeek}

// Span returns [ref-duration, ref].
func (w Window) Span(ref time.Time) Interval {
	return Interval{Start: ref.Add(-w.Duration), End: ref}
}

// EligibleIntervals intersects the analysis span [ref-d, ref] with the
// store's business hours. The result is sorted, pairwise disjoint and never
// longer in total than d.
func EligibleIntervals(r *Resolver, ref time.Time, d time.Duration) []Interval {
	if d <= 0 {
		return nil
	}
	span := Interval{Start: ref.Add(-d), End: ref}
	if r.AlwaysOpen() {
		return []Interval{span}
	}

	// Start one local day early: a shift that began the day before the span
	// may still be running when the span opens.
	first := DateOf(span.Start.In(r.loc)).AddDays(-1)
	last := DateOf(span.End.In(r.loc))

	var out []Interval
	for date := first; !date.After(last); date = date.AddDays(1) {
		for _, iv := range r.BusinessIntervalsUTC(date) {
			if x, ok := iv.Intersect(span); ok {
				out = append(out, x)
			}
		}
	}
	return Merge(out)
}

// EligibleIntervalsFor is EligibleIntervals for one of the report windows.
func EligibleIntervalsFor(r *Resolver, ref time.Time, w Window) []Interval {
	return EligibleIntervals(r, ref, w.Duration)
}
