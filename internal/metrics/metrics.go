// Package metrics provides Prometheus instrumentation for CodeHive.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Room metrics.
var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codehive_active_rooms",
		Help: "Number of rooms currently held by the registry.",
	})

	ActiveMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codehive_active_members",
		Help: "Number of members connected across all rooms.",
	})

	MembersReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codehive_members_reaped_total",
		Help: "Total number of members evicted by the heartbeat sweep.",
	})
)

// WebSocket metrics.
var (
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codehive_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})

	WSMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codehive_ws_messages_total",
		Help: "Total number of WebSocket frames processed.",
	}, []string{"direction", "type"})

	InvalidFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codehive_invalid_frames_total",
		Help: "Total number of inbound frames rejected as malformed.",
	})
)

// Webhook metrics.
var (
	WebhookDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codehive_webhook_deliveries_total",
		Help: "Total number of webhook POSTs attempted.",
	})

	WebhookFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codehive_webhook_failures_total",
		Help: "Total number of webhook POSTs that failed.",
	})
)
