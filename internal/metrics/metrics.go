// Package metrics holds the Prometheus collectors for the scraper service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "url_scraper"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Fetch metrics
	FetchesTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	FetchRetries  prometheus.Counter
	RobotsBlocked prometheus.Counter

	// Batch metrics
	BatchesTotal    prometheus.Counter
	BatchSize       prometheus.Histogram
	BatchDuration   prometheus.Histogram
	WorkersBusy     prometheus.Gauge
	RecordFailures  prometheus.Counter
	Inconsistencies prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Scheduler metrics
	ScheduledRuns *prometheus.CounterVec
}

// New creates and registers all metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initFetchMetrics(factory)
	m.initBatchMetrics(factory)
	m.initHTTPMetrics(factory)

	m.ScheduledRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled task runs by result",
		},
		[]string{"result"},
	)

	return m
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) initFetchMetrics(factory promauto.Factory) {
	m.FetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Fetches by outcome (success or failure kind)",
		},
		[]string{"outcome"},
	)

	m.FetchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time spent fetching and extracting a single URL",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	m.FetchRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Fetch attempts repeated after a network error",
		},
	)

	m.RobotsBlocked = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "robots_blocked_total",
			Help:      "URLs skipped because robots.txt disallows them",
		},
	)
}

func (m *Metrics) initBatchMetrics(factory promauto.Factory) {
	m.BatchesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "total",
			Help:      "Batches started",
		},
	)

	m.BatchSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "size_urls",
			Help:      "Number of URLs per batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	m.BatchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Wall time of a batch run",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	m.WorkersBusy = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "workers_busy",
			Help:      "Workers currently fetching a URL",
		},
	)

	m.RecordFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "record_failures_total",
			Help:      "Outcomes that could not be persisted",
		},
	)

	m.Inconsistencies = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "inconsistent_sessions_total",
			Help:      "Sessions left incomplete after their batch finished",
		},
	)
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	m.HTTPDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
}
