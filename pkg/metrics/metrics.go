// Package metrics declares the Prometheus collectors of the calendar engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts pipeline runs by outcome: create, full, light, unchanged,
	// closed, completed or error.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropcal_pipeline_runs_total",
		Help: "Calendar pipeline runs by outcome",
	}, []string{"outcome"})

	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cropcal_pipeline_duration_seconds",
		Help:    "Duration of one calendar pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"trigger"})

	Coalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cropcal_recalculations_coalesced_total",
		Help: "Recalculation requests folded into an in-flight follow-up run",
	})

	// SnapshotFetches counts gateway fetches by result: ok, fallback, unavailable.
	SnapshotFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropcal_snapshot_fetches_total",
		Help: "Environmental snapshot fetches by result",
	}, []string{"result"})

	TickCalendars = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropcal_tick_calendars_total",
		Help: "Calendars visited by batch ticks, by result",
	}, []string{"result"})

	RefreshEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropcal_snapshot_refresh_events_total",
		Help: "Snapshot refresh notifications received from the message bus, by result",
	}, []string{"result"})
)
