package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	GenerationCallsTotal *prometheus.CounterVec
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemkit_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemkit_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gemkit_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		GenerationCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemkit_generation_calls_total",
			Help: "Image generation calls by type and outcome.",
		}, []string{"type", "outcome"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemkit_pipeline_runs_total",
			Help: "Pipeline runs by terminal status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemkit_pipeline_run_duration_seconds",
			Help:    "Wall time of completed pipeline runs.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGenerationCall records one generation call outcome.
func (m *Metrics) RecordGenerationCall(genType string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if genType == "" {
		genType = "standard"
	}
	m.GenerationCallsTotal.WithLabelValues(genType, outcome).Inc()
}

// RecordRun records a finished pipeline run.
func (m *Metrics) RecordRun(status string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
}
