package datastore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caevv/storemon/internal/uptime"
)

// Memory keeps the whole dataset in memory. Polls are indexed per store and
// kept sorted, so range lookups are binary searches.
// Writes are expected during loading only; reads may run concurrently.
type Memory struct {
	mu        sync.RWMutex
	obs       map[string][]uptime.Observation
	hours     map[string][]uptime.BusinessHours
	timezones map[string]uptime.StoreTimezone
	nextSeq   int64
	latest    time.Time
	hasLatest bool
	dirty     map[string]bool
}

// NewMemory returns an empty in-memory dataset.
func NewMemory() *Memory {
	return &Memory{
		obs:       make(map[string][]uptime.Observation),
		hours:     make(map[string][]uptime.BusinessHours),
		timezones: make(map[string]uptime.StoreTimezone),
		dirty:     make(map[string]bool),
	}
}

// AddObservation appends a poll. Its Seq is assigned from insertion order,
// which is what breaks ties between polls sharing a timestamp.
func (m *Memory) AddObservation(o uptime.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	o.Seq = m.nextSeq
	o.Timestamp = o.Timestamp.UTC()
	m.obs[o.StoreID] = append(m.obs[o.StoreID], o)
	m.dirty[o.StoreID] = true

	if !m.hasLatest || o.Timestamp.After(m.latest) {
		m.latest = o.Timestamp
		m.hasLatest = true
	}
}

// AddBusinessHours appends a business-hours row.
func (m *Memory) AddBusinessHours(h uptime.BusinessHours) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hours[h.StoreID] = append(m.hours[h.StoreID], h)
}

// SetTimezone records the zone of a store, replacing any previous row.
func (m *Memory) SetTimezone(tz uptime.StoreTimezone) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timezones[tz.StoreID] = tz
}

// sorted returns the polls of a store in order, sorting lazily after writes.
func (m *Memory) sorted(storeID string) []uptime.Observation {
	m.mu.RLock()
	if !m.dirty[storeID] {
		defer m.mu.RUnlock()
		return m.obs[storeID]
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty[storeID] {
		uptime.SortObservations(m.obs[storeID])
		delete(m.dirty, storeID)
	}
	return m.obs[storeID]
}

// ObservationsFor implements DataStore.
func (m *Memory) ObservationsFor(ctx context.Context, storeID string, r TimeRange) ([]uptime.Observation, error) {
	all := m.sorted(storeID)
	lo := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(r.From) })
	hi := sort.Search(len(all), func(i int) bool { return all[i].Timestamp.After(r.To) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]uptime.Observation, hi-lo)
	copy(out, all[lo:hi])
	return out, nil
}

// SeedObservation implements DataStore.
func (m *Memory) SeedObservation(ctx context.Context, storeID string, before time.Time) (*uptime.Observation, error) {
	all := m.sorted(storeID)
	i := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(before) })
	if i == 0 {
		return nil, nil
	}
	o := all[i-1]
	return &o, nil
}

// BusinessHoursFor implements DataStore.
func (m *Memory) BusinessHoursFor(ctx context.Context, storeID string) ([]uptime.BusinessHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]uptime.BusinessHours(nil), m.hours[storeID]...), nil
}

// TimezoneFor implements DataStore.
func (m *Memory) TimezoneFor(ctx context.Context, storeID string) (*uptime.StoreTimezone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tz, ok := m.timezones[storeID]
	if !ok {
		return nil, nil
	}
	return &tz, nil
}

// AllStoreIDs implements DataStore.
func (m *Memory) AllStoreIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{}, len(m.obs))
	for id := range m.obs {
		seen[id] = struct{}{}
	}
	for id := range m.hours {
		seen[id] = struct{}{}
	}
	for id := range m.timezones {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LatestObservationInstant implements DataStore.
func (m *Memory) LatestObservationInstant(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasLatest, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
