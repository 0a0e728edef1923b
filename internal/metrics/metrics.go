package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "urbex"

// Record outcomes reported by the pipeline.
const (
	OutcomeAdded     = "added"
	OutcomeUpdated   = "updated"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the prometheus collectors for the pipeline, the geocoder
// and the read API. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	recordsTotal      *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	upsertDuration    prometheus.Histogram
	acquireRetries    *prometheus.CounterVec
	geocodeLookups    *prometheus.CounterVec
	geocodeCacheItems prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers all collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: source, outcome (added, updated, rejected, error, cancelled)
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Records processed by the pipeline, by source and outcome",
		}, []string{"source", "outcome"}),

		// Labels: source, status (success, partial, failure)
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Completed source runs by status",
		}, []string{"source", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single source run",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"source"}),

		upsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upsert_duration_seconds",
			Help:      "Latency of one transactional upsert",
			Buckets:   prometheus.DefBuckets,
		}),

		acquireRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "retries_total",
			Help:      "Retried fetch attempts by source",
		}, []string{"source"}),

		// Labels: provider, result (hit, miss, error)
		geocodeLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "lookups_total",
			Help:      "Geocode lookups by provider and cache result",
		}, []string{"provider", "result"}),

		geocodeCacheItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "geocode",
			Name:      "cache_entries",
			Help:      "Entries currently held in the geocode cache",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOutcome counts one processed record.
func (m *Metrics) RecordOutcome(source, outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordRun counts a finished run and observes its duration.
func (m *Metrics) RecordRun(source, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(source, status).Inc()
	m.runDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveUpsert records the latency of one upsert.
func (m *Metrics) ObserveUpsert(d time.Duration) {
	if m == nil {
		return
	}
	m.upsertDuration.Observe(d.Seconds())
}

// RecordRetry counts one retried fetch for source.
func (m *Metrics) RecordRetry(source string) {
	if m == nil {
		return
	}
	m.acquireRetries.WithLabelValues(source).Inc()
}

// RecordGeocode counts a geocode lookup. result is "hit", "miss" or "error".
func (m *Metrics) RecordGeocode(provider, result string) {
	if m == nil {
		return
	}
	m.geocodeLookups.WithLabelValues(provider, result).Inc()
}

// SetGeocodeCacheSize reports the current number of cached entries.
func (m *Metrics) SetGeocodeCacheSize(n int) {
	if m == nil {
		return
	}
	m.geocodeCacheItems.Set(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
