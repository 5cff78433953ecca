// Package metrics defines the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcome labels.
const (
	OutcomeCommitted    = "committed"
	OutcomeConflict     = "rejected_conflict"
	OutcomeCompileError = "rejected_compile_error"
	OutcomeApplyError   = "rejected_apply_error"
	OutcomeLockTimeout  = "lock_timeout"
	OutcomeCacheHit     = "cache_hit"
)

// Metrics bundles the engine collectors so adapters share one registry.
type Metrics struct {
	Registry *prometheus.Registry

	TurnsTotal      *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	PatchOpsApplied prometheus.Counter
	TurnWarnings    prometheus.Counter

	Subscribers     prometheus.Gauge
	EventsDelivered prometheus.Counter
	EventsDropped   prometheus.Counter
}

// New creates the collectors on a fresh registry, alongside the standard Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opencommotion_turns_total",
			Help: "Turn submissions by outcome",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "opencommotion_turn_duration_seconds",
			Help:    "End-to-end turn processing time",
			Buckets: prometheus.DefBuckets,
		}),
		PatchOpsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "opencommotion_patch_ops_applied_total",
			Help: "Patch ops committed to scenes",
		}),
		TurnWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "opencommotion_turn_warnings_total",
			Help: "Warnings attached to committed turns",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opencommotion_realtime_subscribers",
			Help: "Connected realtime subscribers",
		}),
		EventsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "opencommotion_realtime_events_delivered_total",
			Help: "Realtime events written to subscribers",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "opencommotion_realtime_events_dropped_total",
			Help: "Realtime events dropped on saturated subscriber buffers",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
