// Package metrics exposes Prometheus instrumentation for the contribution store and HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
)

const unmatchedRoute = "unmatched"

// Ensure Collector receives store observations.
var _ contributions.Recorder = (*Collector)(nil)

// Collector holds all Prometheus metrics for the application on its own registry.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Store metrics
	Operations      *prometheus.CounterVec
	StorageFailures *prometheus.CounterVec
	ChainNodes      prometheus.Histogram
	SkippedEdges    prometheus.Counter
}

// NewCollector creates a collector with metrics registered under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	collector := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of contribution store operations",
			},
			[]string{"operation", "outcome"},
		),
		StorageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_failures_total",
				Help:      "Storage reads or writes that failed and were swallowed",
			},
			[]string{"kind"},
		),
		ChainNodes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_nodes",
				Help:      "Number of nodes in reconstructed chains",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		SkippedEdges: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_skipped_edges_total",
				Help:      "Parent edges ignored because they would revisit a chain node",
			},
		),
	}

	registry.MustRegister(
		collector.HTTPRequests,
		collector.HTTPDuration,
		collector.Operations,
		collector.StorageFailures,
		collector.ChainNodes,
		collector.SkippedEdges,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return collector
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveOperation counts a store operation by outcome.
func (c *Collector) ObserveOperation(operation, outcome string) {
	c.Operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveStorageFailure counts a swallowed storage failure.
func (c *Collector) ObserveStorageFailure(kind string) {
	c.StorageFailures.WithLabelValues(kind).Inc()
}

// ObserveChain records the size of a reconstructed chain.
func (c *Collector) ObserveChain(nodes, skippedEdges int) {
	c.ChainNodes.Observe(float64(nodes))
	if skippedEdges > 0 {
		c.SkippedEdges.Add(float64(skippedEdges))
	}
}

// Middleware records request counts and latency per matched route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		start := time.Now()
		ginContext.Next()

		route := ginContext.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := ginContext.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ginContext.Writer.Status())).Inc()
		c.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
