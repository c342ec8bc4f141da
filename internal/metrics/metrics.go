// Package metrics provides Prometheus metrics for the derivation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricUnitsTotal     = "canopy_pipeline_units_total"
	MetricUnitDuration   = "canopy_pipeline_unit_duration_seconds"
	MetricConflictsTotal = "canopy_pipeline_conflicts_total"
	MetricFailuresTotal  = "canopy_pipeline_failures_total"
	MetricRunsTotal      = "canopy_pipeline_runs_total"
	MetricRunDuration    = "canopy_pipeline_run_duration_seconds"
	MetricEventsDropped  = "canopy_pipeline_events_dropped_total"
	MetricHTTPRequests   = "canopy_http_requests_total"
	MetricHTTPDuration   = "canopy_http_request_duration_seconds"
)

// Stage labels.
const (
	StageIngest = "ingest"
	StageClip   = "clip"
	StageRender = "render"
)

// Status labels.
const (
	StatusCreated = "created"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"

	// StatusSucceeded labels a run in which every unit completed.
	StatusSucceeded = "succeeded"
	// StatusCanceled labels a run interrupted by its context.
	StatusCanceled = "canceled"
)

// Metrics contains Prometheus metrics for pipeline operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	unitsTotal    *prometheus.CounterVec
	unitDuration  *prometheus.HistogramVec
	conflicts     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	eventsDropped prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		unitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricUnitsTotal,
				Help: "Total number of pipeline units processed by stage and status",
			},
			[]string{"stage", "status"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricUnitDuration,
				Help:    "Histogram of per-unit processing time in seconds by stage",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"stage"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricConflictsTotal,
				Help: "Total number of duplicate inserts resolved by a uniqueness constraint",
			},
			[]string{"stage"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFailuresTotal,
				Help: "Total number of unit failures by stage and error type",
			},
			[]string{"stage", "error_type"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRunsTotal,
				Help: "Total number of orchestrator runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricRunDuration,
				Help:    "Histogram of orchestrator run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0, 300.0, 900.0},
			},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricEventsDropped,
				Help: "Total number of derivation events that could not be published",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequests,
				Help: "Total number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPDuration,
				Help:    "Histogram of HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.unitsTotal,
		m.unitDuration,
		m.conflicts,
		m.failures,
		m.runsTotal,
		m.runDuration,
		m.eventsDropped,
		m.httpRequests,
		m.httpDuration,
	}
}

// ObserveUnit records one processed unit and its duration.
func (m *Metrics) ObserveUnit(stage, status string, seconds float64) {
	if m == nil {
		return
	}
	m.unitsTotal.WithLabelValues(stage, status).Inc()
	m.unitDuration.WithLabelValues(stage).Observe(seconds)
}

// IncConflicts counts a duplicate insert swallowed by a uniqueness constraint.
func (m *Metrics) IncConflicts(stage string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(stage).Inc()
}

// IncFailures counts a failed unit.
// errorType: a short classification such as "invalid_raster" or "database_error"
func (m *Metrics) IncFailures(stage, errorType string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage, errorType).Inc()
}

// ObserveRun records a completed orchestrator run.
func (m *Metrics) ObserveRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

// IncEventsDropped counts an event the publisher failed to deliver.
func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// ObserveHTTPRequest records one served request. route is the matched route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
