package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the watch-party service.
//
// Naming convention: namespace_subsystem_name
// - namespace: synctube (application-level grouping)
// - subsystem: websocket, room, queue, metadata, ratelimit
// - name: specific metric (connections_active, frames_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, users per room)
// - Counter: Cumulative events (frames processed, votes, chat)
// - Histogram: Latency distributions (frame processing time)

var (
	// ActiveConnections tracks the current number of open websocket sessions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "synctube",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "synctube",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomUsers tracks connected users per room.
	RoomUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "synctube",
		Subsystem: "room",
		Name:      "users_connected",
		Help:      "Number of connected users in each room",
	}, []string{"room_id"})

	// FramesProcessed counts client frames by type and outcome.
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total client frames processed",
	}, []string{"frame_type", "status"})

	// FrameProcessingDuration tracks time spent handling client frames.
	FrameProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "synctube",
		Subsystem: "websocket",
		Name:      "frame_processing_seconds",
		Help:      "Time spent processing client frames",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"frame_type"})

	// HeartbeatBroadcasts counts sync heartbeats sent to occupied rooms.
	HeartbeatBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "room",
		Name:      "heartbeats_total",
		Help:      "Total heartbeat sync broadcasts",
	})

	// HostTransfers counts host role handovers after the grace period.
	HostTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "room",
		Name:      "host_transfers_total",
		Help:      "Total host role transfers",
	})

	// ChatMessages counts accepted chat messages, system ones included.
	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "room",
		Name:      "chat_messages_total",
		Help:      "Total chat messages appended to room history",
	})

	// VideosAdded counts queue additions by video kind.
	VideosAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "queue",
		Name:      "videos_added_total",
		Help:      "Total videos added to queues",
	}, []string{"video_type"})

	// SkipVotes counts skip votes cast, including instant host/requester skips.
	SkipVotes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "queue",
		Name:      "skip_votes_total",
		Help:      "Total skip votes cast",
	})

	// MetadataLookups counts oracle lookups by outcome (ok, error, fallback).
	MetadataLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "metadata",
		Name:      "lookups_total",
		Help:      "Total metadata oracle lookups",
	}, []string{"status"})

	// CircuitBreakerState exposes the oracle breaker state.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "synctube",
		Subsystem: "metadata",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// CircuitBreakerFailures counts calls rejected by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "metadata",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total calls rejected while the circuit breaker was open",
	}, []string{"service"})

	// RateLimitExceeded counts rejected requests per limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "synctube",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"limiter"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
