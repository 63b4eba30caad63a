// Package metrics holds the Prometheus instrumentation of the report pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for report generation. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	ReportsTriggered prometheus.Counter
	ReportsFinished  *prometheus.CounterVec
	ReportDuration   prometheus.Histogram
	ReportsRunning   prometheus.Gauge
	StoresProcessed  *prometheus.CounterVec
	TriggersRejected prometheus.Counter
}

// New registers the metrics with reg. A nil registerer selects the default
// Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ReportsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storemon",
			Subsystem: "report",
			Name:      "triggered_total",
			Help:      "Total number of report jobs triggered.",
		}),
		ReportsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storemon",
			Subsystem: "report",
			Name:      "finished_total",
			Help:      "Total number of report jobs that reached a terminal state.",
		}, []string{"outcome"}), // outcome: complete, failed
		ReportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storemon",
			Subsystem: "report",
			Name:      "duration_seconds",
			Help:      "Wall time of report jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ReportsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storemon",
			Subsystem: "report",
			Name:      "running",
			Help:      "Number of report jobs currently running.",
		}),
		StoresProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storemon",
			Subsystem: "aggregator",
			Name:      "stores_total",
			Help:      "Total number of stores aggregated by result.",
		}, []string{"result"}), // result: ok, partial, error
		TriggersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "storemon",
			Subsystem: "http",
			Name:      "triggers_rejected_total",
			Help:      "Total number of report triggers rejected by the rate limiter.",
		}),
	}
}

// JobStarted records a newly triggered job.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ReportsTriggered.Inc()
	m.ReportsRunning.Inc()
}

// JobFinished records a job reaching a terminal state.
func (m *Metrics) JobFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReportsRunning.Dec()
	m.ReportsFinished.WithLabelValues(outcome).Inc()
	m.ReportDuration.Observe(elapsed.Seconds())
}

// StoreProcessed records the result of one store aggregation.
func (m *Metrics) StoreProcessed(result string) {
	if m == nil {
		return
	}
	m.StoresProcessed.WithLabelValues(result).Inc()
}

// TriggerRejected records a throttled trigger request.
func (m *Metrics) TriggerRejected() {
	if m == nil {
		return
	}
	m.TriggersRejected.Inc()
}
