// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Source adapter metrics track per-source fetch health.
var (
	// AdapterFetchesTotal counts Fetch calls per source by outcome.
	AdapterFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_fetches_total",
			Help: "Total number of source adapter fetch attempts",
		},
		[]string{"source", "status"},
	)

	// AdapterFetchDuration measures one adapter's Fetch latency.
	AdapterFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adapter_fetch_duration_seconds",
			Help:    "Time taken by a source adapter to fetch and parse its trends",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"source"},
	)
)

// Aggregation metrics track the fan-out/fuse pipeline as a whole.
var (
	// AggregationDuration measures one full Collect() pass.
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Time taken for one full aggregation pass across all adapters",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// KeywordsFused tracks the size of the most recent ranked output.
	KeywordsFused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keywords_fused",
			Help: "Number of fused keywords produced by the most recent aggregation pass",
		},
	)
)

// Cache Layer metrics.
var (
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache lookups that found a live entry",
		},
		[]string{"backend"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache lookups that found no live entry",
		},
		[]string{"backend"},
	)
)

// Topic Clusterer metrics.
var (
	ClusterRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cluster_requests_total",
			Help: "Total number of topic clustering backend calls",
		},
		[]string{"status"},
	)

	ClusterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cluster_duration_seconds",
			Help:    "Time taken by a topic clustering backend call",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

// Refresh Controller metrics.
var (
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshes_total",
			Help: "Total number of refresh runs by outcome",
		},
		[]string{"status"},
	)

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscribers_active",
			Help: "Number of active push-stream subscribers",
		},
	)

	SnapshotPersistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapshot_persist_errors_total",
			Help: "Total number of failures writing the on-disk snapshot cache",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}
