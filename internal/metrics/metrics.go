// Package metrics exposes Prometheus counters for the sync and cache tiers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bidline"

var (
	// Loads counts proposal loads by the tier that supplied the state:
	// remote, remote+cache, cache, default.
	Loads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "loads_total",
		Help:      "Proposal loads by source tier.",
	}, []string{"source"})

	// Saves counts save-path outcomes: written, unchanged, quiescent.
	Saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "saves_total",
		Help:      "Save path outcomes.",
	}, []string{"outcome"})

	RemoteWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "remote_writes_total",
		Help:      "Debounced remote store writes by result.",
	}, []string{"result"})

	ExtractionRejectedYears = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "rejected_years_total",
		Help:      "Contract year values on extracted roles that could not be read.",
	})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Local cache failures by kind: read, write, corrupt.",
	}, []string{"kind"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
