package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreState is 1 for the connector's current state and 0 for the rest.
	StoreState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "todos_store_state",
			Help: "Current Redis connector state (1 = active state)",
		},
		[]string{"state"},
	)

	// StoreReconnects counts reconnect attempts after a failed ping.
	StoreReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "todos_store_reconnects_total",
			Help: "Total number of Redis reconnect attempts",
		},
	)

	// StoreErrors counts failed store operations by command.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todos_store_errors_total",
			Help: "Total number of failed Redis operations",
		},
		[]string{"operation"}, // "get", "set", "setex", "incr", "expire", "exists"
	)
)

func recordState(s State) {
	for _, st := range AllStates {
		v := 0.0
		if st == s {
			v = 1
		}
		StoreState.WithLabelValues(st.String()).Set(v)
	}
}
