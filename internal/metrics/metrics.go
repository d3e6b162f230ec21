// Package metrics provides the Prometheus metrics exported by the AgriSmart server.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics contains all Prometheus metrics for analysis requests and their adapters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Analyses        *prometheus.CounterVec
	AdapterDuration *prometheus.HistogramVec
	ModelLoads      *prometheus.CounterVec
	GeocodeCache    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	registry        *prometheus.Registry
}

// New creates the metrics and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}
	m.initMetrics()

	for _, c := range []prometheus.Collector{
		m.Analyses, m.AdapterDuration, m.ModelLoads, m.GeocodeCache, m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.Analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agrismart_analyses_total",
		Help: "Total number of recorded analyses by status.",
	}, []string{"status"})

	m.AdapterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agrismart_adapter_duration_seconds",
		Help:    "Duration of disease and IFS adapter calls in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"adapter", "outcome"})

	m.ModelLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agrismart_model_load_total",
		Help: "Total number of disease model load attempts by result.",
	}, []string{"result"})

	m.GeocodeCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agrismart_geocode_cache_total",
		Help: "Total number of geocode cache lookups by result.",
	}, []string{"result"})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agrismart_http_requests_total",
		Help: "Total number of HTTP requests by method and status code.",
	}, []string{"method", "code"})
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAnalysis counts one recorded analysis.
func (m *Metrics) RecordAnalysis(status string) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(status).Inc()
}

// ObserveAdapter records how long one adapter call took. outcome is "ok" or "error".
func (m *Metrics) ObserveAdapter(adapter, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AdapterDuration.WithLabelValues(adapter, outcome).Observe(d.Seconds())
}

// RecordModelLoad counts a model load attempt.
func (m *Metrics) RecordModelLoad(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ModelLoads.WithLabelValues(result).Inc()
}

// RecordGeocodeCache counts a geocode cache hit or miss.
func (m *Metrics) RecordGeocodeCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.GeocodeCache.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, fmt.Sprint(code)).Inc()
}
