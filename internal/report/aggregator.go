package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caevv/storemon/internal/datastore"
	"github.com/caevv/storemon/internal/metrics"
	"github.com/caevv/storemon/internal/uptime"
)

// Options configures an Aggregator.
type Options struct {
	// DefaultTimezone applies to stores without a timezone row and to stores
	// whose zone name cannot be resolved. Empty means uptime.DefaultTimezone.
	DefaultTimezone string

	// LeadingGap decides the status before a store's first observation.
	LeadingGap uptime.LeadingGapPolicy

	// Workers bounds how many stores are aggregated concurrently.
	// Zero means GOMAXPROCS.
	Workers int
}

// Aggregator builds report rows from a DataStore.
type Aggregator struct {
	ds         datastore.DataStore
	defaultLoc *time.Location
	extr       uptime.Extrapolator
	workers    int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewAggregator creates an Aggregator. It fails only when the default
// timezone is unknown.
func NewAggregator(ds datastore.DataStore, opts Options, logger *slog.Logger, m *metrics.Metrics) (*Aggregator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := uptime.LoadLocation("", opts.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Aggregator{
		ds:         ds,
		defaultLoc: loc,
		extr:       uptime.Extrapolator{Policy: opts.LeadingGap},
		workers:    workers,
		logger:     logger,
		metrics:    m,
	}, nil
}

// BuildReport computes one row per store, ordered by store_id. Per-store
// problems become row markers; the error is non-nil only when no row can be
// produced from real data (no stores, every store unreadable) or ctx ends.
func (a *Aggregator) BuildReport(ctx context.Context, ref time.Time, storeIDs []string) ([]Row, error) {
	if len(storeIDs) == 0 {
		return nil, &uptime.DataUnavailableError{Reason: "no stores"}
	}
	ref = ref.UTC()

	rows := make([]Row, len(storeIDs))
	dataErrs := make([]error, len(storeIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, id := range storeIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.Compute(gctx, ref, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				dataErrs[i] = err
			}
			rows[i] = res.Row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	var firstErr error
	for _, err := range dataErrs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed == len(storeIDs) {
		return nil, &uptime.DataUnavailableError{Reason: "no store could be read", Err: firstErr}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].StoreID < rows[j].StoreID })

	a.logger.Info("report built",
		"reference_instant", ref,
		"stores", len(rows),
		"failed_stores", failed,
	)
	return rows, nil
}

// Compute aggregates a single store. A malformed schedule or timezone is
// recovered with a fallback and noted on the row. A data read error yields a
// zero row carrying the marker, and is also returned.
func (a *Aggregator) Compute(ctx context.Context, ref time.Time, storeID string) (StoreResult, error) {
	ref = ref.UTC()
	logger := a.logger.With("store_id", storeID)

	res, err := a.compute(ctx, ref, storeID, logger)
	if err != nil {
		a.metrics.StoreProcessed("error")
		logger.Warn("store data unavailable", "error", err)
		return StoreResult{
			Row:       Row{StoreID: storeID, PartialFailure: "data unavailable: " + err.Error()},
			Durations: make([]uptime.Durations, len(uptime.Windows)),
			Eligible:  make([]time.Duration, len(uptime.Windows)),
		}, err
	}
	if res.Row.PartialFailure != "" {
		a.metrics.StoreProcessed("partial")
	} else {
		a.metrics.StoreProcessed("ok")
	}
	return res, nil
}

func (a *Aggregator) compute(ctx context.Context, ref time.Time, storeID string, logger *slog.Logger) (StoreResult, error) {
	tz, err := a.ds.TimezoneFor(ctx, storeID)
	if err != nil {
		return StoreResult{}, fmt.Errorf("timezone: %w", err)
	}
	hours, err := a.ds.BusinessHoursFor(ctx, storeID)
	if err != nil {
		return StoreResult{}, fmt.Errorf("business hours: %w", err)
	}

	resolver, notes := a.resolver(storeID, tz, hours, logger)

	week := uptime.LastWeek.Span(ref)
	obs, err := a.ds.ObservationsFor(ctx, storeID, datastore.TimeRange{From: week.Start, To: ref})
	if err != nil {
		return StoreResult{}, fmt.Errorf("observations: %w", err)
	}
	seed, err := a.ds.SeedObservation(ctx, storeID, week.Start)
	if err != nil {
		return StoreResult{}, fmt.Errorf("seed observation: %w", err)
	}
	if seed != nil {
		obs = append([]uptime.Observation{*seed}, obs...)
	}

	res := StoreResult{
		Durations: make([]uptime.Durations, len(uptime.Windows)),
		Eligible:  make([]time.Duration, len(uptime.Windows)),
	}
	for i, w := range uptime.Windows {
		intervals := uptime.EligibleIntervalsFor(resolver, ref, w)
		res.Eligible[i] = uptime.TotalDuration(intervals)
		res.Durations[i] = a.extr.IntegrateAll(intervals, obs)
	}

	res.Row = newRow(storeID, res.Durations)
	res.Row.PartialFailure = strings.Join(notes, "; ")
	return res, nil
}

// resolver parses the store's inputs, substituting the default zone for a bad
// timezone and an always-open schedule for bad hours.
func (a *Aggregator) resolver(storeID string, tz *uptime.StoreTimezone, hours []uptime.BusinessHours, logger *slog.Logger) (*uptime.Resolver, []string) {
	var notes []string

	loc := a.defaultLoc
	if tz != nil && strings.TrimSpace(tz.TimezoneName) != "" {
		l, err := uptime.LoadLocation(storeID, tz.TimezoneName)
		if err != nil {
			logger.Warn("invalid timezone, using default", "timezone", tz.TimezoneName, "default", a.defaultLoc.String(), "error", err)
			notes = append(notes, describe(err)+"; used default timezone "+a.defaultLoc.String())
		} else {
			loc = l
		}
	}

	schedule, err := uptime.ParseWeeklySchedule(storeID, hours)
	if err != nil {
		logger.Warn("invalid business hours, treating store as always open", "error", err)
		notes = append(notes, describe(err)+"; treated as always open")
		schedule = uptime.AlwaysOpen()
	}

	return uptime.NewResolver(storeID, loc, schedule), notes
}

func describe(err error) string {
	var spe *uptime.ScheduleParseError
	if errors.As(err, &spe) {
		return fmt.Sprintf("invalid %s %q", spe.Field, spe.Value)
	}
	return err.Error()
}
