package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for CacheRequests.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultBypass = "bypass"
)

var (
	// CacheRequests tracks request outcomes by result (hit, miss, bypass)
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todos_cache_requests_total",
			Help: "Total number of todos requests by cache result",
		},
		[]string{"result"},
	)

	// HitCount mirrors the "count" key after the last hit or refresh
	HitCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "todos_cache_hit_count",
			Help: "Cache hits since the last refresh, as last observed",
		},
	)

	// CacheSize tracks the size of the cached payload in bytes
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "todos_cache_size_bytes",
			Help: "Size of the cached todos payload in bytes",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todos_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "ensure_counter", "lookup", "hit", "refresh", "count"
	)
)
