package metrics_test

import (
	"testing"

	"github.com/Sternrassler/todos-proxy/pkg/cache"
	"github.com/Sternrassler/todos-proxy/pkg/metrics"
	"github.com/Sternrassler/todos-proxy/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistry(t *testing.T) {
	if metrics.Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if metrics.Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestDocumentedMetricsRegistered(t *testing.T) {
	// vectors only show up once a label set exists
	cache.CacheRequests.WithLabelValues(cache.ResultHit)
	cache.CacheErrors.WithLabelValues("lookup")
	store.StoreErrors.WithLabelValues("get")
	store.StoreState.WithLabelValues(store.StateReady.String())

	families, err := metrics.Gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	registered := make(map[string]bool, len(families))
	for _, mf := range families {
		registered[mf.GetName()] = true
	}

	for _, name := range []string{
		"todos_store_state",
		"todos_store_reconnects_total",
		"todos_store_errors_total",
		"todos_cache_requests_total",
		"todos_cache_hit_count",
		"todos_cache_size_bytes",
		"todos_cache_errors_total",
	} {
		if !registered[name] {
			t.Errorf("metric %s is not registered", name)
		}
	}
}
