package uptime

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LeadingGapPolicy decides the status of the part of an interval that lies
// before the first known observation of a store.
type LeadingGapPolicy int

const (
	// AssumeInactive counts the leading gap as downtime. It never overstates
	// uptime and is the default.
	AssumeInactive LeadingGapPolicy = iota
	// AssumeActive counts the leading gap as uptime.
	AssumeActive
)

// ParseLeadingGapPolicy parses "inactive" or "active". Empty selects
// AssumeInactive.
func ParseLeadingGapPolicy(s string) (LeadingGapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inactive":
		return AssumeInactive, nil
	case "active":
		return AssumeActive, nil
	default:
		return 0, fmt.Errorf("invalid leading gap policy %q (must be 'inactive' or 'active')", s)
	}
}

func (p LeadingGapPolicy) String() string {
	if p == AssumeActive {
		return "active"
	}
	return "inactive"
}

func (p LeadingGapPolicy) status() Status {
	if p == AssumeActive {
		return StatusActive
	}
	return StatusInactive
}

// Durations is the outcome of integrating status over an interval.
type Durations struct {
	Active   time.Duration
	Inactive time.Duration
}

// Total returns Active+Inactive.
func (d Durations) Total() time.Duration {
	return d.Active + d.Inactive
}

// Add accumulates o into d.
func (d *Durations) Add(o Durations) {
	d.Active += o.Active
	d.Inactive += o.Inactive
}

func (d *Durations) credit(s Status, span time.Duration) {
	if span <= 0 {
		return
	}
	if s == StatusActive {
		d.Active += span
	} else {
		d.Inactive += span
	}
}

// Extrapolator assigns a status to every instant of an interval by carrying
// the last observation forward.
type Extrapolator struct {
	Policy LeadingGapPolicy
}

// Integrate partitions iv into constant-status spans and sums them. obs must
// belong to one store and be ordered with SortObservations; it may contain
// observations outside iv.
//
// The status at iv.Start comes from the latest observation strictly before
// it, or from the policy when there is none. Every observation inside iv
// (bounds included) switches the status from its timestamp on. Observations
// after iv.End are ignored. Among observations sharing a timestamp the last
// one in order wins. Active+Inactive always equals iv.Duration().
func (e Extrapolator) Integrate(iv Interval, obs []Observation) Durations {
	var d Durations
	if iv.Empty() {
		return d
	}

	i := sort.Search(len(obs), func(k int) bool {
		return !obs[k].Timestamp.Before(iv.Start)
	})

	current := e.Policy.status()
	if i > 0 {
		current = obs[i-1].Status
	}

	pos := iv.Start
	for ; i < len(obs) && !obs[i].Timestamp.After(iv.End); i++ {
		d.credit(current, obs[i].Timestamp.Sub(pos))
		current = obs[i].Status
		pos = obs[i].Timestamp
	}
	d.credit(current, iv.End.Sub(pos))
	return d
}

// IntegrateAll integrates each interval and sums the results.
func (e Extrapolator) IntegrateAll(intervals []Interval, obs []Observation) Durations {
	var total Durations
	for _, iv := range intervals {
		total.Add(e.Integrate(iv, obs))
	}
	return total
}
