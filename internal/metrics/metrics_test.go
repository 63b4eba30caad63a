package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_JobLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobStarted()
	m.JobStarted()
	if got := testutil.ToFloat64(m.ReportsRunning); got != 2 {
		t.Errorf("ReportsRunning = %v, want 2", got)
	}

	m.JobFinished("complete", time.Second)
	m.JobFinished("failed", time.Second)

	if got := testutil.ToFloat64(m.ReportsTriggered); got != 2 {
		t.Errorf("ReportsTriggered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ReportsRunning); got != 0 {
		t.Errorf("ReportsRunning = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ReportsFinished.WithLabelValues("complete")); got != 1 {
		t.Errorf("ReportsFinished{complete} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReportsFinished.WithLabelValues("failed")); got != 1 {
		t.Errorf("ReportsFinished{failed} = %v, want 1", got)
	}
}

func TestMetrics_StoresAndTriggers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StoreProcessed("ok")
	m.StoreProcessed("ok")
	m.StoreProcessed("partial")
	m.TriggerRejected()

	if got := testutil.ToFloat64(m.StoresProcessed.WithLabelValues("ok")); got != 2 {
		t.Errorf("StoresProcessed{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StoresProcessed.WithLabelValues("partial")); got != 1 {
		t.Errorf("StoresProcessed{partial} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TriggersRejected); got != 1 {
		t.Errorf("TriggersRejected = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.JobStarted()
	m.JobFinished("complete", time.Second)
	m.StoreProcessed("ok")
	m.TriggerRejected()
}
