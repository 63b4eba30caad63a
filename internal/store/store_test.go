package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/caevv/storemon/internal/report"
)

var base = time.Date(2023, 1, 25, 12, 0, 0, 0, time.UTC)

// runStoreContract exercises the behaviour every driver must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		job, err := s.Create(ctx, "r-1", base)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if job.Status != StatusRunning {
			t.Errorf("Status = %v, want %v", job.Status, StatusRunning)
		}

		got, err := s.Get(ctx, "r-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ReportID != "r-1" || got.Status != StatusRunning {
			t.Errorf("Get() = %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Create(ctx, "r-1", base); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := s.Create(ctx, "r-1", base); !errors.Is(err, ErrJobExists) {
			t.Errorf("Create() duplicate error = %v, want ErrJobExists", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		err := s.SetResult(ctx, "missing", Result{Status: StatusComplete})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("SetResult() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("terminal state is final", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Create(ctx, "r-1", base); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		rows := []report.Row{{StoreID: "a", UptimeLastHour: 60}, {StoreID: "b", PartialFailure: "invalid timezone"}}
		err := s.SetResult(ctx, "r-1", Result{
			Status:           StatusComplete,
			CompletedAt:      base.Add(time.Minute),
			ReferenceInstant: base.Add(-time.Hour),
			Rows:             rows,
		})
		if err != nil {
			t.Fatalf("SetResult() error = %v", err)
		}

		err = s.SetResult(ctx, "r-1", Result{Status: StatusFailed, Error: "late"})
		if !errors.Is(err, ErrJobFinalized) {
			t.Errorf("second SetResult() error = %v, want ErrJobFinalized", err)
		}

		got, err := s.Get(ctx, "r-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != StatusComplete {
			t.Errorf("Status = %v, want %v", got.Status, StatusComplete)
		}
		if len(got.Rows) != 2 || got.Rows[1].PartialFailure != "invalid timezone" {
			t.Errorf("Rows = %+v", got.Rows)
		}
		if got.StoreCount != 2 {
			t.Errorf("StoreCount = %d, want 2", got.StoreCount)
		}
		if got.Duration() != time.Minute {
			t.Errorf("Duration() = %v, want 1m", got.Duration())
		}
	})

	t.Run("non terminal result rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Create(ctx, "r-1", base); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := s.SetResult(ctx, "r-1", Result{Status: StatusRunning}); err == nil {
			t.Error("SetResult(Running) expected error")
		}
	})

	t.Run("list newest first without rows", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("r-%d", i)
			if _, err := s.Create(ctx, id, base.Add(time.Duration(i)*time.Hour)); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := s.SetResult(ctx, id, Result{Status: StatusComplete, CompletedAt: base, Rows: []report.Row{{StoreID: "a"}}}); err != nil {
				t.Fatalf("SetResult() error = %v", err)
			}
		}

		got, err := s.List(ctx, 2)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List() returned %d jobs, want 2", len(got))
		}
		if got[0].ReportID != "r-2" || got[1].ReportID != "r-1" {
			t.Errorf("List() order = %s, %s, want r-2, r-1", got[0].ReportID, got[1].ReportID)
		}
		if got[0].Rows != nil {
			t.Error("List() returned rows")
		}
		if got[0].StoreCount != 1 {
			t.Errorf("List() StoreCount = %d, want 1", got[0].StoreCount)
		}
	})

	t.Run("purge keeps running and recent jobs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Create(ctx, "old-done", base.Add(-48*time.Hour)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := s.SetResult(ctx, "old-done", Result{Status: StatusFailed, Error: "no data"}); err != nil {
			t.Fatalf("SetResult() error = %v", err)
		}
		if _, err := s.Create(ctx, "old-running", base.Add(-48*time.Hour)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := s.Create(ctx, "new-done", base); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := s.SetResult(ctx, "new-done", Result{Status: StatusComplete}); err != nil {
			t.Fatalf("SetResult() error = %v", err)
		}

		n, err := s.Purge(ctx, base.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("Purge() error = %v", err)
		}
		if n != 1 {
			t.Errorf("Purge() removed %d, want 1", n)
		}
		if _, err := s.Get(ctx, "old-done"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(old-done) error = %v, want ErrNotFound", err)
		}
		for _, id := range []string{"old-running", "new-done"} {
			if _, err := s.Get(ctx, id); err != nil {
				t.Errorf("Get(%s) error = %v", id, err)
			}
		}
	})

	t.Run("concurrent jobs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("c-%d", i)
				if _, err := s.Create(ctx, id, base); err != nil {
					errs <- err
					return
				}
				if err := s.SetResult(ctx, id, Result{Status: StatusComplete}); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent write error = %v", err)
		}

		jobs, err := s.List(ctx, 100)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(jobs) != 10 {
			t.Errorf("List() returned %d jobs, want 10", len(jobs))
		}
	})
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusRunning, false},
		{StatusComplete, true},
		{StatusFailed, true},
		{Status("Paused"), false},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
