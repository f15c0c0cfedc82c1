// Package metrics exposes Prometheus instrumentation for store
// operations, background jobs, import outcomes, and HTTP traffic.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"floracore/internal/core"
	"floracore/internal/jobs"
)

// Collector owns a private registry so embedding several instances in
// one process (servers, tests) never trips duplicate registration.
type Collector struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	txDuration   *prometheus.HistogramVec
	jobEvents    *prometheus.CounterVec
	importRows   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var (
	_ core.MetricsRecorder = (*Collector)(nil)
	_ jobs.Monitor         = (*Collector)(nil)
)

// NewCollector builds a collector with runtime collectors preregistered.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floracore",
			Subsystem: "store",
			Name:      "transactions_total",
			Help:      "Total number of store transactions broken down by operation and result.",
		}, []string{"operation", "result"}),
		txDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floracore",
			Subsystem: "store",
			Name:      "transaction_duration_seconds",
			Help:      "Latency distribution for store transactions.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"operation"}),
		jobEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floracore",
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Total number of job state transitions broken down by kind and status.",
		}, []string{"kind", "status"}),
		importRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floracore",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of imported rows broken down by outcome.",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floracore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests broken down by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floracore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP requests.",
			Buckets: []float64{
				0.0005, 0.001, 0.002, 0.005,
				0.01, 0.02, 0.05, 0.1,
				0.2, 0.5, 1, 2,
			},
		}, []string{"method", "route"}),
	}
}

// Observe records one store transaction.
func (c *Collector) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	c.transactions.WithLabelValues(operation, resultLabel(success)).Inc()
	c.txDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// JobTransition records one job state transition.
func (c *Collector) JobTransition(kind jobs.Kind, status jobs.Status) {
	c.jobEvents.WithLabelValues(string(kind), string(status)).Inc()
}

// ImportRows records the per-row outcome counts of one import run.
func (c *Collector) ImportRows(committed, failed, skipped int) {
	c.importRows.WithLabelValues("committed").Add(float64(committed))
	c.importRows.WithLabelValues("failed").Add(float64(failed))
	c.importRows.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveHTTP records one served HTTP request. route is the registered
// pattern, not the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that register
// additional collectors of their own.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
