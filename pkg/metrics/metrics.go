package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "rooms_active", Help: "Documents with at least one connected participant."},
	)
	RoomMemberships = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "room_memberships", Help: "Participant memberships summed over all rooms."},
	)
	ConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "websocket_connections", Help: "Open websocket connections."},
	)
	EventsBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "events_broadcast_total", Help: "Events enqueued to participants by event type."},
		[]string{"event"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "events_dropped_total", Help: "Events lost to full send queues by overflow policy."},
		[]string{"policy"},
	)
	RelayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "relay_messages_total", Help: "Cross-instance relay traffic by direction."},
		[]string{"direction"},
	)
	ChatMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "chat_messages_total", Help: "Chat messages persisted."},
	)
	VersionsSaved = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "versions_saved_total", Help: "Document versions appended by explicit saves."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(RoomsActive)
	reg.MustRegister(RoomMemberships)
	reg.MustRegister(ConnectionsOpen)
	reg.MustRegister(EventsBroadcast)
	reg.MustRegister(EventsDropped)
	reg.MustRegister(RelayMessages)
	reg.MustRegister(ChatMessages)
	reg.MustRegister(VersionsSaved)
}
