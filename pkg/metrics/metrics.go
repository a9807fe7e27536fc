// Package metrics is the reference for the Prometheus metrics exported by
// the todos proxy. Metrics are defined with promauto in the packages that
// update them (store, cache, upstream, handler) and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer behind /metrics.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - todos_store_state{state} (Gauge): 1 for the connector's current state, 0 otherwise
//   - todos_store_reconnects_total (Counter): Reconnect attempts
//   - todos_store_errors_total{operation} (Counter): Failed store commands
//
// Cache Metrics (pkg/cache):
//   - todos_cache_requests_total{result} (Counter): Requests by result (hit, miss, bypass)
//   - todos_cache_hit_count (Gauge): Value of the "count" key after the last hit or refresh
//   - todos_cache_size_bytes (Gauge): Size of the cached payload
//   - todos_cache_errors_total{operation} (Counter): Cache operation errors
//
// Upstream Metrics (pkg/upstream):
//   - todos_upstream_requests_total{status} (Counter): Upstream requests by HTTP status or "network_error"
//   - todos_upstream_request_duration_seconds (Histogram): Fetch duration including retries
//   - todos_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - todos_upstream_retry_exhausted_total{error_class} (Counter): Fetches that used every attempt
//
// HTTP Metrics (pkg/handler):
//   - todos_http_requests_total{path, status} (Counter): Served requests
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(todos_cache_requests_total{result="hit"}[5m])) /
//   sum(rate(todos_cache_requests_total[5m]))
//
//   # Degraded mode
//   todos_store_state{state="ready"} == 0
//
//   # Requests bypassing the cache
//   rate(todos_cache_requests_total{result="bypass"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(todos_upstream_request_duration_seconds_bucket[5m]))
