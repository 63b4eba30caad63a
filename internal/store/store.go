// Package store provides persistence for report jobs.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/caevv/storemon/internal/report"
)

var (
	// ErrNotFound is returned for a report id the store has never seen.
	ErrNotFound = errors.New("report not found")

	// ErrJobFinalized is returned when writing a result to a job that is
	// already Complete or Failed.
	ErrJobFinalized = errors.New("report already finalized")

	// ErrJobExists is returned when creating a job with a used report id.
	ErrJobExists = errors.New("report already exists")
)

// Status is the lifecycle state of a report job.
type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Store defines the interface for persisting and retrieving report jobs.
type Store interface {
	// Create records a new Running job. It fails with ErrJobExists if the id
	// is taken.
	Create(ctx context.Context, reportID string, createdAt time.Time) (*Job, error)

	// SetResult moves a Running job to its terminal state. It fails with
	// ErrNotFound or ErrJobFinalized.
	SetResult(ctx context.Context, reportID string, res Result) error

	// Get retrieves a job with its rows. It fails with ErrNotFound.
	Get(ctx context.Context, reportID string) (*Job, error)

	// List returns up to limit jobs, newest first, without their rows.
	List(ctx context.Context, limit int) ([]*Job, error)

	// Purge deletes terminal jobs created before olderThan and returns how
	// many were removed. Running jobs are never purged.
	Purge(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Job is one triggered report.
type Job struct {
	// ReportID is the opaque identifier handed to the caller.
	ReportID string `json:"report_id"`

	Status Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is zero while the job is running.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// ReferenceInstant is the instant all windows end at.
	ReferenceInstant time.Time `json:"reference_instant,omitempty"`

	Rows []report.Row `json:"rows,omitempty"`

	// StoreCount is len(Rows); it survives in List results.
	StoreCount int `json:"store_count"`

	// Error is the failure reason of a Failed job.
	Error string `json:"error,omitempty"`
}

// Duration returns the time taken by the job, or zero while running.
func (j *Job) Duration() time.Duration {
	if j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.CreatedAt)
}

// Document returns the job's rows ready to encode.
func (j *Job) Document() report.Document {
	return report.Document{ReportID: j.ReportID, ReferenceInstant: j.ReferenceInstant, Rows: j.Rows}
}

// Result is the terminal outcome written by the job's owner.
type Result struct {
	Status           Status
	CompletedAt      time.Time
	ReferenceInstant time.Time
	Rows             []report.Row
	Error            string
}

func newJob(reportID string, createdAt time.Time) (*Job, error) {
	if reportID == "" {
		return nil, fmt.Errorf("report_id is required")
	}
	return &Job{ReportID: reportID, Status: StatusRunning, CreatedAt: createdAt.UTC()}, nil
}

// apply validates the transition and writes res into job.
func apply(job *Job, res Result) error {
	if !res.Status.Terminal() {
		return fmt.Errorf("invalid result status %q", res.Status)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinalized, job.ReportID, job.Status)
	}
	job.Status = res.Status
	job.CompletedAt = res.CompletedAt.UTC()
	job.ReferenceInstant = res.ReferenceInstant.UTC()
	job.Rows = res.Rows
	job.StoreCount = len(res.Rows)
	job.Error = res.Error
	return nil
}

// summary returns a copy of job without rows.
func summary(job *Job) *Job {
	c := *job
	c.Rows = nil
	return &c
}

// clone returns a deep copy of job.
func clone(job *Job) *Job {
	c := *job
	if job.Rows != nil {
		c.Rows = append([]report.Row(nil), job.Rows...)
	}
	return &c
}

// newestFirst sorts jobs by creation time descending, then by id, and
// applies limit.
func newestFirst(jobs []*Job, limit int) []*Job {
	if limit <= 0 {
		limit = 100 // default limit
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ReportID < jobs[j].ReportID
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

func purgeable(job *Job, olderThan time.Time) bool {
	return job.Status.Terminal() && job.CreatedAt.Before(olderThan)
}
