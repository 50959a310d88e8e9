package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Global collector instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Run lifecycle metrics
	RunsStarted        prometheus.Counter
	RunsCompleted      prometheus.Counter
	RunsFailed         prometheus.Counter
	RunsCancelled      prometheus.Counter
	ContractRejections prometheus.Counter
	StreamEvents       *prometheus.CounterVec
	RunDuration        prometheus.Histogram

	// Generation polling metrics
	PollTicks       prometheus.Counter
	GenerationsDone prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Singleton avoids duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	runsStarted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capsule_runs_started_total",
			Help:      "Total number of capsule preview runs issued",
		},
	)

	runsCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capsule_runs_completed_total",
			Help:      "Total number of capsule runs that completed",
		},
	)

	runsFailed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capsule_runs_failed_total",
			Help:      "Total number of capsule runs that failed",
		},
	)

	runsCancelled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capsule_runs_cancelled_total",
			Help:      "Total number of capsule runs cancelled by the user",
		},
	)

	contractRejections := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_rejections_total",
			Help:      "Total number of pre-flight contract rejections",
		},
	)

	streamEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of run stream events by type",
		},
		[]string{"type"},
	)

	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capsule_run_duration_seconds",
			Help:      "Wall time from run issue to terminal event",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	pollTicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_poll_ticks_total",
			Help:      "Total number of generation status polls",
		},
	)

	generationsDone := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_runs_done_total",
			Help:      "Total number of generation runs that reached done",
		},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		runsStarted,
		runsCompleted,
		runsFailed,
		runsCancelled,
		contractRejections,
		streamEvents,
		runDuration,
		pollTicks,
		generationsDone,
	)

	globalCollector = &Collector{
		registry:           registry,
		HTTPRequests:       httpRequests,
		HTTPDuration:       httpDuration,
		RunsStarted:        runsStarted,
		RunsCompleted:      runsCompleted,
		RunsFailed:         runsFailed,
		RunsCancelled:      runsCancelled,
		ContractRejections: contractRejections,
		StreamEvents:       streamEvents,
		RunDuration:        runDuration,
		PollTicks:          pollTicks,
		GenerationsDone:    generationsDone,
	}
	return globalCollector
}

// Handler returns the HTTP handler exposing this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request
func (c *Collector) ObserveHTTP(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
