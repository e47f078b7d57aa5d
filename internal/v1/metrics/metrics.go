package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the signaling server.
//
// Naming convention: namespace_subsystem_name
// - namespace: signaling (application-level grouping)
// - subsystem: websocket, room, relay (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, peers)
// - Counter: Cumulative events (frames dispatched, relays, drops)
// - Histogram: Latency distributions (dispatch time)

var (
	// ActiveConnections tracks the current number of accepted WebSocket peers.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of non-empty rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPeers tracks the member count per room.
	RoomPeers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signaling",
		Subsystem: "room",
		Name:      "peers_count",
		Help:      "Number of peers in each room",
	}, []string{"room_id"})

	// DispatchedFrames counts inbound frames by envelope type and outcome.
	DispatchedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total inbound frames dispatched",
	}, []string{"frame_type", "status"})

	// DroppedFrames counts frames rejected before dispatch.
	DroppedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "frames_dropped_total",
		Help:      "Total inbound frames dropped before dispatch",
	}, []string{"reason"})

	// RelayedSignals counts relayed OFFER/ANSWER/ICE_CANDIDATE frames.
	RelayedSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "relay",
		Name:      "signals_total",
		Help:      "Total signaling frames relayed between peers",
	}, []string{"signal_type"})

	// DispatchDuration tracks time spent handling inbound frames.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "dispatch_seconds",
		Help:      "Time spent dispatching inbound frames",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"frame_type"})

	// PeerTimeouts counts peers terminated by the liveness ticker.
	PeerTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "peer_timeouts_total",
		Help:      "Total peers terminated after missing a liveness pong",
	})

	// RateLimitExceeded counts rejected WebSocket connection attempts.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signaling",
		Subsystem: "websocket",
		Name:      "rate_limited_total",
		Help:      "Total connection attempts rejected by rate limiting",
	}, []string{"limit_type"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
