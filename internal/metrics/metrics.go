// Package metrics exposes the Prometheus counters, gauges, and histograms
// instrumented across the routing service's components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Hazard fusion (C4)
	FusionPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_fusion_passes_total",
			Help: "Total number of completed hazard fusion passes",
		},
		[]string{"status"}, // status: success/failed
	)

	FusionPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marikina_fusion_pass_duration_seconds",
			Help:    "Hazard fusion pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	FusionCoalescedTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marikina_fusion_coalesced_triggers_total",
			Help: "Total number of fusion triggers collapsed into an in-flight pass",
		},
	)

	FusionDegradedLocations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marikina_fusion_degraded_locations_total",
			Help: "Total number of fused locations that fell back to the global contribution (unresolvable coordinate)",
		},
	)

	CriticalAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_critical_alerts_total",
			Help: "Total number of critical_alert live updates emitted",
		},
		[]string{"source"}, // source: edge/location
	)

	// Collectors (C5/C6)
	CollectorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_collector_runs_total",
			Help: "Total number of collector ticks",
		},
		[]string{"collector", "status"}, // collector: flood/scout; status: success/partial/failed
	)

	CollectorRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marikina_collector_run_duration_seconds",
			Help:    "Collector run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"collector"},
	)

	CollectorDataPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_collector_data_points_total",
			Help: "Total number of data points collected",
		},
		[]string{"collector", "source"},
	)

	CollectorSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_collector_source_failures_total",
			Help: "Total number of per-source collection failures after retries",
		},
		[]string{"collector", "source"},
	)

	// Router (C7)
	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_route_requests_total",
			Help: "Total number of route requests by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	RouteComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marikina_route_compute_duration_seconds",
			Help:    "Time to compute a route in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"mode"},
	)

	// Evacuation (C8)
	EvacuationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_evacuation_requests_total",
			Help: "Total number of evacuation-center requests by outcome",
		},
		[]string{"status"},
	)

	// Message bus (C9)
	BusMailboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_bus_mailbox_dropped_total",
			Help: "Total number of envelopes dropped due to mailbox soft cap",
		},
		[]string{"receiver"},
	)

	BusEnvelopesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_bus_envelopes_sent_total",
			Help: "Total number of envelopes sent on the bus",
		},
		[]string{"performative"},
	)

	// Scheduler (C10)
	SchedulerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marikina_scheduler_ticks_total",
			Help: "Total number of scheduler ticks fired",
		},
	)

	// Mission FSM (C11)
	MissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_missions_total",
			Help: "Total number of missions by type and final state",
		},
		[]string{"type", "state"},
	)

	MissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marikina_mission_duration_seconds",
			Help:    "Mission duration from CREATED to a terminal state, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"type"},
	)

	// Live broadcaster (C12)
	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marikina_broadcast_subscribers",
			Help: "Current number of connected WebSocket subscribers",
		},
	)

	BroadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marikina_broadcast_messages_total",
			Help: "Total number of live update messages sent to subscribers",
		},
		[]string{"kind"},
	)

	BroadcastSubscriberDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marikina_broadcast_subscriber_drops_total",
			Help: "Total number of subscribers unsubscribed for falling behind",
		},
	)
)
