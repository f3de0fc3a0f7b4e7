// Package metrics holds the Prometheus collectors for the registry, the
// matcher, the store and the HTTP service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private Prometheus registry and its collectors.
type Registry struct {
	registry *prometheus.Registry

	GraphsActive           prometheus.Gauge
	GraphsPinned           prometheus.Gauge
	GraphLoadsTotal        *prometheus.CounterVec
	GraphEvictionsTotal    prometheus.Counter
	WaypointsTotal         *prometheus.CounterVec
	EntriesTotal           *prometheus.CounterVec
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)

	r.GraphsActive = f.NewGauge(prometheus.GaugeOpts{
		Name: "trailgraph_graphs_active",
		Help: "Number of graphs held in memory",
	})
	r.GraphsPinned = f.NewGauge(prometheus.GaugeOpts{
		Name: "trailgraph_graphs_pinned",
		Help: "Graphs held in memory until their changes are saved",
	})
	r.GraphLoadsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "trailgraph_graph_loads_total",
		Help: "Graphs loaded from the store on demand",
	}, []string{"result"}) // ok, missing, corrupt, error
	r.GraphEvictionsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "trailgraph_graph_evictions_total",
		Help: "Idle graphs evicted from memory",
	})
	r.WaypointsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "trailgraph_waypoints_total",
		Help: "Waypoint insertions by outcome",
	}, []string{"result"}) // merged, split, unmatched
	r.EntriesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "trailgraph_entries_total",
		Help: "Observer entry lookups by outcome",
	}, []string{"result"}) // node, edge, off_trail
	r.StoreOperationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "trailgraph_store_operations_total",
		Help: "Graph store operations",
	}, []string{"operation", "status"})
	r.StoreOperationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trailgraph_store_operation_duration_seconds",
		Help:    "Duration of graph store operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})
	r.HTTPRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "trailgraph_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
	r.HTTPRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trailgraph_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordStoreOperation records a store operation and its duration.
func (r *Registry) RecordStoreOperation(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	r.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request with its duration.
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
