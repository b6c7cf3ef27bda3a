// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for hop latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Hop kinds used as label values.
const (
	HopFinal     = "final"
	HopForward   = "forward"
	HopKeepAlive = "keepalive"
)

// Metrics holds all Prometheus metric collectors for the relay.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	HopDuration           *prometheus.HistogramVec
	HopResponses          *prometheus.CounterVec
	HopErrors             *prometheus.CounterVec
	FingerprintSelections *prometheus.CounterVec
	WorkersInFlight       prometheus.Gauge
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hopchain_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hopchain_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hopchain_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		HopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hopchain_hop_duration_seconds",
			Help:    "Outbound hop latency until response headers, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"kind"}),

		HopResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hopchain_hop_responses_total",
			Help: "Total outbound hop responses by hop kind and status code.",
		}, []string{"kind", "status_code"}),

		HopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hopchain_hop_errors_total",
			Help: "Total failed outbound hops by hop kind and error class.",
		}, []string{"kind", "class"}),

		FingerprintSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hopchain_fingerprint_selections_total",
			Help: "Fingerprints used for outbound hops.",
		}, []string{"fingerprint"}),

		WorkersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hopchain_worker_in_flight",
			Help: "Outbound calls currently running on the worker pool.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.HopDuration,
		m.HopResponses,
		m.HopErrors,
		m.FingerprintSelections,
		m.WorkersInFlight,
	)

	return m
}

// Handler returns the exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
// /proxy/status precedes /proxy so the longer route wins.
var knownPrefixes = []string{"/proxy/status", "/proxy", "/looproxy", "/impersonate", "/healthz", "/health", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
