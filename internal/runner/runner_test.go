package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/caevv/storemon/internal/datastore"
	"github.com/caevv/storemon/internal/metrics"
	"github.com/caevv/storemon/internal/report"
	"github.com/caevv/storemon/internal/store"
	"github.com/caevv/storemon/internal/uptime"
)

var ref = time.Date(2023, 1, 25, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newJSONStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewJSONStore(filepath.Join(t.TempDir(), "reports.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	return s
}

func sampleData() *datastore.Memory {
	ds := datastore.NewMemory()
	ds.SetTimezone(uptime.StoreTimezone{StoreID: "a", TimezoneName: "UTC"})
	ds.AddObservation(uptime.Observation{StoreID: "a", Timestamp: ref.Add(-30 * time.Minute), Status: uptime.StatusActive})
	ds.AddObservation(uptime.Observation{StoreID: "b", Timestamp: ref, Status: uptime.StatusInactive})
	return ds
}

func newRunner(t *testing.T, ds datastore.DataStore, b Builder, m *metrics.Metrics) *Runner {
	t.Helper()
	if b == nil {
		agg, err := report.NewAggregator(ds, report.Options{}, discardLogger(), m)
		if err != nil {
			t.Fatalf("NewAggregator() error = %v", err)
		}
		b = agg
	}
	return New(newJSONStore(t), ds, b, Options{MaxConcurrentJobs: 2}, discardLogger(), m)
}

func TestRunner_TriggerCompletes(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := newRunner(t, sampleData(), nil, m)
	ctx := context.Background()

	id, err := r.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	r.Wait()

	job, err := r.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if job.Status != store.StatusComplete {
		t.Fatalf("Status = %v (%s), want Complete", job.Status, job.Error)
	}
	if !job.ReferenceInstant.Equal(ref) {
		t.Errorf("ReferenceInstant = %v, want %v", job.ReferenceInstant, ref)
	}
	if len(job.Rows) != 2 || job.Rows[0].StoreID != "a" || job.Rows[1].StoreID != "b" {
		t.Fatalf("Rows = %+v", job.Rows)
	}
	if job.Rows[0].UptimeLastHour != 30 || job.Rows[0].DowntimeLastHour != 30 {
		t.Errorf("store a last hour = %d/%d, want 30/30", job.Rows[0].UptimeLastHour, job.Rows[0].DowntimeLastHour)
	}
	if job.CompletedAt.IsZero() {
		t.Error("CompletedAt not set")
	}

	if got := testutil.ToFloat64(m.ReportsFinished.WithLabelValues("complete")); got != 1 {
		t.Errorf("ReportsFinished{complete} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReportsRunning); got != 0 {
		t.Errorf("ReportsRunning = %v, want 0", got)
	}
}

func TestRunner_BackToBackTriggers(t *testing.T) {
	r := newRunner(t, sampleData(), nil, nil)
	ctx := context.Background()

	first, err := r.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	second, err := r.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if first == second {
		t.Fatalf("Trigger() returned the same id twice: %s", first)
	}
	r.Wait()

	a, _ := r.Status(ctx, first)
	b, _ := r.Status(ctx, second)
	if a.Status != store.StatusComplete || b.Status != store.StatusComplete {
		t.Fatalf("statuses = %v, %v, want Complete", a.Status, b.Status)
	}
	if fmt.Sprint(a.Rows) != fmt.Sprint(b.Rows) {
		t.Errorf("identical inputs gave different rows:\n%v\n%v", a.Rows, b.Rows)
	}
}

func TestRunner_EmptyDatasetFails(t *testing.T) {
	r := newRunner(t, datastore.NewMemory(), nil, nil)
	ctx := context.Background()

	id, err := r.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	r.Wait()

	job, err := r.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if job.Status != store.StatusFailed {
		t.Fatalf("Status = %v, want Failed", job.Status)
	}
	if !strings.Contains(job.Error, "no observations") {
		t.Errorf("Error = %q, want mention of no observations", job.Error)
	}
}

func TestRunner_UnknownReport(t *testing.T) {
	r := newRunner(t, sampleData(), nil, nil)
	_, err := r.Status(context.Background(), "nope")
	if !errors.Is(err, uptime.ErrInvalidReportID) {
		t.Errorf("Status() error = %v, want ErrInvalidReportID", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Status() error = %v, want to wrap store.ErrNotFound", err)
	}
}

// gatedBuilder blocks until release is closed.
type gatedBuilder struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedBuilder) BuildReport(ctx context.Context, ref time.Time, ids []string) ([]report.Row, error) {
	close(g.started)
	<-g.release
	return []report.Row{{StoreID: "x"}}, nil
}

func TestRunner_RunningUntilDone(t *testing.T) {
	g := &gatedBuilder{started: make(chan struct{}), release: make(chan struct{})}
	r := newRunner(t, sampleData(), g, nil)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := r.Trigger(ctx)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	// The caller going away must not stop the job.
	cancel()

	select {
	case <-g.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}

	job, err := r.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if job.Status != store.StatusRunning {
		t.Errorf("Status while building = %v, want Running", job.Status)
	}

	close(g.release)
	r.Wait()

	job, _ = r.Status(context.Background(), id)
	if job.Status != store.StatusComplete {
		t.Errorf("Status after release = %v, want Complete", job.Status)
	}
}

type panickyBuilder struct{}

func (panickyBuilder) BuildReport(ctx context.Context, ref time.Time, ids []string) ([]report.Row, error) {
	panic("boom")
}

func TestRunner_PanicFailsJob(t *testing.T) {
	r := newRunner(t, sampleData(), panickyBuilder{}, nil)
	id, err := r.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	r.Wait()

	job, _ := r.Status(context.Background(), id)
	if job.Status != store.StatusFailed || !strings.Contains(job.Error, "boom") {
		t.Errorf("job = %v %q, want Failed with panic message", job.Status, job.Error)
	}
}

func TestRunner_ListAndPurge(t *testing.T) {
	r := newRunner(t, sampleData(), nil, nil)
	ctx := context.Background()

	clock := ref.Add(-72 * time.Hour)
	r.now = func() time.Time { return clock }
	if _, err := r.Trigger(ctx); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	r.Wait()

	clock = ref
	if _, err := r.Trigger(ctx); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	r.Wait()

	jobs, err := r.List(ctx, 10)
	if err != nil || len(jobs) != 2 {
		t.Fatalf("List() = %d jobs, %v, want 2", len(jobs), err)
	}

	n, err := r.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() removed %d, want 1", n)
	}
	jobs, _ = r.List(ctx, 10)
	if len(jobs) != 1 {
		t.Errorf("List() after purge = %d jobs, want 1", len(jobs))
	}
}

func TestRunner_RecoverInterruptedJobs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.db")

	st, err := store.NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	if _, err := st.Create(ctx, "orphan", ref.Add(-48*time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := st.Create(ctx, "done", ref.Add(-48*time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := st.SetResult(ctx, "done", store.Result{Status: store.StatusComplete, CompletedAt: ref.Add(-47 * time.Hour)}); err != nil {
		t.Fatalf("SetResult() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A new process opens the same file.
	st, err = store.NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st.Close()

	m := metrics.New(prometheus.NewRegistry())
	r := New(st, sampleData(), panickyBuilder{}, Options{}, discardLogger(), m)
	r.now = func() time.Time { return ref }

	n, err := r.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Recover() = %d, want 1", n)
	}

	job, err := r.Status(ctx, "orphan")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if job.Status != store.StatusFailed || job.Error != InterruptedReason || !job.CompletedAt.Equal(ref) {
		t.Errorf("orphan = %v %q completed %v, want Failed %q at %v", job.Status, job.Error, job.CompletedAt, InterruptedReason, ref)
	}
	done, _ := r.Status(ctx, "done")
	if done.Status != store.StatusComplete {
		t.Errorf("finished job changed to %v", done.Status)
	}
	if got := testutil.ToFloat64(m.ReportsFinished.WithLabelValues("failed")); got != 1 {
		t.Errorf("ReportsFinished{failed} = %v, want 1", got)
	}

	if n, _ := r.Recover(ctx); n != 0 {
		t.Errorf("second Recover() = %d, want 0", n)
	}
	purged, err := r.Purge(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged != 2 {
		t.Errorf("Purge() removed %d, want 2", purged)
	}
}

// flakySaveStore fails SetResult calls until failures reaches zero, and
// always fails Complete results when rejectComplete is set.
type flakySaveStore struct {
	store.Store
	mu             sync.Mutex
	failures       int
	rejectComplete bool
	calls          int
}

func (f *flakySaveStore) SetResult(ctx context.Context, reportID string, res store.Result) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0 || (f.rejectComplete && res.Status == store.StatusComplete)
	if f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.SetResult(ctx, reportID, res)
}

func TestRunner_ResultSaveFailures(t *testing.T) {
	tests := []struct {
		name           string
		failures       int
		rejectComplete bool
		wantStatus     store.Status
		wantError      string
	}{
		{name: "transient failure is retried", failures: 1, wantStatus: store.StatusComplete},
		{name: "retries exhausted falls back to failed", failures: 3, wantStatus: store.StatusFailed, wantError: "failed to save report: disk full"},
		{name: "rows never stored", rejectComplete: true, wantStatus: store.StatusFailed, wantError: "failed to save report: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &flakySaveStore{Store: newJSONStore(t), failures: tt.failures, rejectComplete: tt.rejectComplete}
			agg, err := report.NewAggregator(sampleData(), report.Options{}, discardLogger(), nil)
			if err != nil {
				t.Fatalf("NewAggregator() error = %v", err)
			}
			r := New(fs, sampleData(), agg, Options{}, discardLogger(), nil)
			r.saveDelays = []time.Duration{0, 0}

			id, err := r.Trigger(context.Background())
			if err != nil {
				t.Fatalf("Trigger() error = %v", err)
			}
			r.Wait()

			job, err := r.Status(context.Background(), id)
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if job.Status != tt.wantStatus {
				t.Fatalf("Status = %v (%q), want %v", job.Status, job.Error, tt.wantStatus)
			}
			if job.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", job.Error, tt.wantError)
			}
		})
	}
}

// serialBuilder records how many builds overlap.
type serialBuilder struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	entered chan struct{}
	release chan struct{}
}

func (b *serialBuilder) BuildReport(ctx context.Context, ref time.Time, ids []string) ([]report.Row, error) {
	b.mu.Lock()
	b.active++
	if b.active > b.maxSeen {
		b.maxSeen = b.active
	}
	b.mu.Unlock()

	b.entered <- struct{}{}
	<-b.release

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return []report.Row{{StoreID: "x"}}, nil
}

func TestRunner_MaxConcurrentJobs(t *testing.T) {
	b := &serialBuilder{entered: make(chan struct{}, 2), release: make(chan struct{})}
	r := New(newJSONStore(t), sampleData(), b, Options{MaxConcurrentJobs: 1}, discardLogger(), nil)

	// Callers going away must not make a queued job give up its slot.
	ctx, cancel := context.WithCancel(context.Background())
	first, _ := r.Trigger(ctx)
	second, _ := r.Trigger(ctx)
	cancel()

	<-b.entered
	select {
	case <-b.entered:
		t.Fatal("second job started while the first held the only slot")
	case <-time.After(50 * time.Millisecond):
	}
	if job, _ := r.Status(context.Background(), second); job.Status != store.StatusRunning {
		t.Errorf("queued job = %v, want Running", job.Status)
	}

	b.release <- struct{}{}
	<-b.entered
	b.release <- struct{}{}
	r.Wait()

	for _, id := range []string{first, second} {
		if job, _ := r.Status(context.Background(), id); job.Status != store.StatusComplete {
			t.Errorf("%s = %v, want Complete", id, job.Status)
		}
	}
	if b.maxSeen != 1 {
		t.Errorf("max concurrent builds = %d, want 1", b.maxSeen)
	}
}
