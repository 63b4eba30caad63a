// Package runner triggers report jobs and executes them in the background.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/caevv/storemon/internal/datastore"
	"github.com/caevv/storemon/internal/metrics"
	"github.com/caevv/storemon/internal/report"
	"github.com/caevv/storemon/internal/store"
	"github.com/caevv/storemon/internal/uptime"
)

// Builder produces report rows for a reference instant.
type Builder interface {
	BuildReport(ctx context.Context, ref time.Time, storeIDs []string) ([]report.Row, error)
}

// Options configures a Runner.
type Options struct {
	// MaxConcurrentJobs bounds how many jobs aggregate at the same time.
	// Further jobs stay Running until a slot frees up. Zero means 1.
	MaxConcurrentJobs int64
}

// Runner owns the lifecycle of report jobs. Each job is written exactly
// twice: created Running by Trigger, then finalized by its own goroutine.
type Runner struct {
	store   store.Store
	data    datastore.DataStore
	builder Builder
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup

	now        func() time.Time
	newID      func() string
	saveDelays []time.Duration
}

// InterruptedReason is recorded on jobs found Running at startup.
const InterruptedReason = "interrupted before completion"

// defaultSaveDelays are the pauses between attempts to store a job result.
var defaultSaveDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

// New creates a Runner.
func New(st store.Store, ds datastore.DataStore, b Builder, opts Options, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	slots := opts.MaxConcurrentJobs
	if slots <= 0 {
		slots = 1
	}
	return &Runner{
		store:   st,
		data:    ds,
		builder: b,
		sem:     semaphore.NewWeighted(slots),
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
		saveDelays: defaultSaveDelays,
	}
}

// Recover fails every job left Running by a previous process. Call it once
// at startup, before the first Trigger.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	jobs, err := r.store.List(ctx, math.MaxInt32)
	if err != nil {
		return 0, fmt.Errorf("failed to list reports: %w", err)
	}

	recovered := 0
	for _, job := range jobs {
		if job.Status != store.StatusRunning {
			continue
		}
		err := r.store.SetResult(ctx, job.ReportID, store.Result{
			Status:      store.StatusFailed,
			CompletedAt: r.now(),
			Error:       InterruptedReason,
		})
		if errors.Is(err, store.ErrJobFinalized) {
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover report %s: %w", job.ReportID, err)
		}
		recovered++
		r.metrics.JobFinished(outcome(store.StatusFailed), r.now().Sub(job.CreatedAt))
		r.logger.Warn("marked interrupted report as failed", "report_id", job.ReportID, "created_at", job.CreatedAt)
	}
	return recovered, nil
}

// Trigger creates a Running job and starts it in the background. It returns
// as soon as the job is recorded. The job keeps running when ctx ends.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	reportID := r.newID()
	job, err := r.store.Create(ctx, reportID, r.now())
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}

	r.metrics.JobStarted()
	r.logger.Info("report triggered", "report_id", reportID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(context.WithoutCancel(ctx), job)
	}()
	return reportID, nil
}

// Status returns the current state of a job. Unknown ids fail with
// uptime.ErrInvalidReportID.
func (r *Runner) Status(ctx context.Context, reportID string) (*store.Job, error) {
	job, err := r.store.Get(ctx, reportID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", uptime.ErrInvalidReportID, err)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// List returns the most recent jobs without their rows.
func (r *Runner) List(ctx context.Context, limit int) ([]*store.Job, error) {
	return r.store.List(ctx, limit)
}

// Purge removes finished jobs created more than retention ago.
func (r *Runner) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n, err := r.store.Purge(ctx, r.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("purged old reports", "count", n, "retention", retention)
	}
	return n, nil
}

// Wait blocks until every triggered job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, job *store.Job) {
	logger := r.logger.With("report_id", job.ReportID)

	// ctx carries no cancellation, so Acquire only returns once a slot is free.
	_ = r.sem.Acquire(ctx, 1)
	defer r.sem.Release(1)

	var res store.Result
	func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("report panicked", "panic", p)
				res = store.Result{Status: store.StatusFailed, Error: fmt.Sprintf("internal error: %v", p)}
			}
		}()
		res = r.build(ctx, logger)
	}()
	r.finish(ctx, logger, job, res)
}

// build runs one aggregation pass. Failed is returned only when no row can be
// produced.
func (r *Runner) build(ctx context.Context, logger *slog.Logger) store.Result {
	ref, ok, err := r.data.LatestObservationInstant(ctx)
	if err != nil {
		return failed(&uptime.DataUnavailableError{Reason: "latest observation", Err: err})
	}
	if !ok {
		return failed(&uptime.DataUnavailableError{Reason: "no observations"})
	}

	ids, err := r.data.AllStoreIDs(ctx)
	if err != nil {
		return failed(&uptime.DataUnavailableError{Reason: "store ids", Err: err})
	}

	logger.Info("building report", "reference_instant", ref, "stores", len(ids))
	rows, err := r.builder.BuildReport(ctx, ref, ids)
	if err != nil {
		res := failed(err)
		res.ReferenceInstant = ref
		return res
	}
	return store.Result{Status: store.StatusComplete, ReferenceInstant: ref, Rows: rows}
}

func failed(err error) store.Result {
	return store.Result{Status: store.StatusFailed, Error: err.Error()}
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, job *store.Job, res store.Result) {
	res.CompletedAt = r.now()
	elapsed := res.CompletedAt.Sub(job.CreatedAt)

	if err := r.save(ctx, logger, job.ReportID, res); err != nil {
		if res.Status == store.StatusFailed {
			logger.Error("failed to save report result", "error", err)
			return
		}
		// Rows that cannot be stored still must not leave the job Running.
		res = store.Result{
			Status:           store.StatusFailed,
			CompletedAt:      res.CompletedAt,
			ReferenceInstant: res.ReferenceInstant,
			Error:            "failed to save report: " + err.Error(),
		}
		if err := r.save(ctx, logger, job.ReportID, res); err != nil {
			logger.Error("failed to save report result", "error", err)
			return
		}
	}
	r.metrics.JobFinished(outcome(res.Status), elapsed)

	if res.Status == store.StatusFailed {
		logger.Error("report failed", "error", res.Error, "duration", elapsed)
		return
	}
	logger.Info("report complete", "stores", len(res.Rows), "duration", elapsed)
}

// save writes res, retrying after each of saveDelays. A job that is already
// terminal is not retried.
func (r *Runner) save(ctx context.Context, logger *slog.Logger, reportID string, res store.Result) error {
	err := r.store.SetResult(ctx, reportID, res)
	for _, delay := range r.saveDelays {
		if err == nil || errors.Is(err, store.ErrJobFinalized) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		logger.Warn("retrying report result save", "error", err, "delay", delay)
		time.Sleep(delay)
		err = r.store.SetResult(ctx, reportID, res)
	}
	return err
}

func outcome(s store.Status) string {
	if s == store.StatusComplete {
		return "complete"
	}
	return "failed"
}
