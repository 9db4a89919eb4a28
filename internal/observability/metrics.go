// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogger_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ProfileEditOutcomes counts profile edit submissions by outcome (ok or error code).
	ProfileEditOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogger_profile_edit_outcomes_total",
		Help: "Profile edit submissions by outcome",
	}, []string{"outcome"})

	// ProfileEditStepLatency records the latency of each profile edit step.
	ProfileEditStepLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blogger_profile_edit_step_latency_seconds",
		Help:    "Profile edit step latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})

	// ChangeEventsPublished counts change events by collection.
	ChangeEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogger_change_events_published_total",
		Help: "Total change events published by collection",
	}, []string{"collection"})

	// ActiveSubscriptions is the gauge of live projection subscriptions per view.
	ActiveSubscriptions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blogger_active_subscriptions",
		Help: "Number of live projection subscriptions",
	}, []string{"view"})

	// SnapshotDeliveries counts snapshots delivered to subscribers per view.
	SnapshotDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogger_snapshot_deliveries_total",
		Help: "Total snapshots delivered to subscribers",
	}, []string{"view"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blogger_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by view and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogger_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"view", "reason"})
)

// TrackStep returns a function that records the step latency when called (e.g. defer).
func TrackStep(step string) func() {
	start := time.Now()
	return func() {
		ProfileEditStepLatency.WithLabelValues(step).Observe(time.Since(start).Seconds())
	}
}
