// Package metrics holds the Prometheus collectors shared by the session stores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreMutations counts applied store mutations by store and operation.
	StoreMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_store_mutations_total",
			Help: "Total number of session store mutations",
		},
		[]string{"store", "op"},
	)

	// PersistFailures counts failed writes to the storage bridge.
	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_persist_failures_total",
			Help: "Total number of failed storage bridge writes",
		},
		[]string{"store"},
	)

	// ActiveSessions is the number of storefront sessions held in memory.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_active_sessions",
			Help: "Number of storefront sessions currently held in the registry",
		},
	)

	// GeolocationLookups counts geolocation lookups by outcome.
	GeolocationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_geolocation_lookups_total",
			Help: "Total number of IP geolocation lookups by outcome",
		},
		[]string{"outcome"},
	)
)
