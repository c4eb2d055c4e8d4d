// Package metrics provides Prometheus metrics export for the generation
// client and the summary cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reviewsense"

// PrometheusExporter exports client and cache metrics in Prometheus
// format. It implements llm.Recorder and summary.Recorder.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// LLM attempt metrics
	llmAttempts     *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	llmRetryDelay   *prometheus.HistogramVec
	llmRetriesTotal *prometheus.CounterVec

	// Summary cache metrics
	cacheLookups       *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationDuration prometheus.Histogram
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.llmAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Total number of provider calls by outcome",
		},
		[]string{"provider", "outcome"},
	)

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempt_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider"},
	)

	e.llmRetryDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "retry_delay_seconds",
			Help:      "Delay slept before retrying a rate-limited call",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	e.llmRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of rate-limit retries",
		},
		[]string{"provider"},
	)

	e.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "cache_lookups_total",
			Help:      "Summary cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	e.storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "store_errors_total",
			Help:      "Summary store failures by operation",
		},
		[]string{"op"},
	)

	e.generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "generations_total",
			Help:      "Summary generations by status",
		},
		[]string{"status"},
	)

	e.generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "generation_duration_seconds",
			Help:      "Time to generate and store a summary, retries included",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	registry.MustRegister(
		e.llmAttempts,
		e.llmLatency,
		e.llmRetryDelay,
		e.llmRetriesTotal,
		e.cacheLookups,
		e.storeErrors,
		e.generations,
		e.generationDuration,
	)

	return e
}

// ObserveAttempt records one provider call.
func (e *PrometheusExporter) ObserveAttempt(provider, outcome string, latency time.Duration) {
	e.llmAttempts.WithLabelValues(provider, outcome).Inc()
	e.llmLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// ObserveRetryDelay records a delay taken before a retry.
func (e *PrometheusExporter) ObserveRetryDelay(provider string, delay time.Duration) {
	e.llmRetriesTotal.WithLabelValues(provider).Inc()
	e.llmRetryDelay.WithLabelValues(provider).Observe(delay.Seconds())
}

// ObserveCacheLookup records a cache lookup result.
func (e *PrometheusExporter) ObserveCacheLookup(result string) {
	e.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveStoreError records a failed store operation.
func (e *PrometheusExporter) ObserveStoreError(op string) {
	e.storeErrors.WithLabelValues(op).Inc()
}

// ObserveGeneration records a finished summary generation.
func (e *PrometheusExporter) ObserveGeneration(status string, duration time.Duration) {
	e.generations.WithLabelValues(status).Inc()
	e.generationDuration.Observe(duration.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
