// Package metrics holds the Prometheus collectors for the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskjournal"

// Store operation results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	classifications *prometheus.CounterVec
	classifyLatency prometheus.Histogram
	storeOps        *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	feedEvents      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classification attempts by outcome.",
		}, []string{"outcome"}),
		classifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Wall time of classification calls.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Persistence gateway operations by op and result.",
		}, []string{"op", "result"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Persistence gateway latency by op.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		feedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_total",
			Help:      "Change feed events by kind and direction.",
		}, []string{"kind", "direction"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.classifications,
		m.classifyLatency,
		m.storeOps,
		m.storeLatency,
		m.feedEvents,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveClassification records one classification attempt.
func (m *Metrics) ObserveClassification(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(outcome).Inc()
	m.classifyLatency.Observe(d.Seconds())
}

// ObserveStore records one gateway operation.
func (m *Metrics) ObserveStore(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.storeOps.WithLabelValues(op, result).Inc()
	m.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveFeed records a change event; direction is "published" or "received".
func (m *Metrics) ObserveFeed(kind, direction string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(kind, direction).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}
