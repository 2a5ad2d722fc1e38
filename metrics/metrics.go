// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runforge_events_ingested_total",
			Help: "Total number of events persisted, by source and level",
		},
		[]string{"source", "level"},
	)

	BusyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runforge_store_busy_retries_total",
			Help: "Total number of storage writes retried on contention",
		},
	)

	SummaryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runforge_summary_failures_total",
			Help: "Total number of swallowed summary maintenance failures",
		},
	)

	LiveBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runforge_live_broadcasts_total",
			Help: "Total number of events pushed to live subscribers",
		},
	)

	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runforge_live_subscribers",
			Help: "Current number of live subscribers across all rooms",
		},
	)

	RegistryEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runforge_registry_evictions_total",
			Help: "Total number of ephemeral runs evicted, by reason",
		},
		[]string{"reason"},
	)
)
