// Package metrics exposes Prometheus instrumentation for the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Currently open chat WebSocket connections",
		},
	)

	WSOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_online_users",
			Help: "Users with at least one open chat connection",
		},
	)

	WSFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_frames_received_total",
			Help: "Inbound frames by type (unknown and malformed included)",
		},
		[]string{"type"},
	)

	WSEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_sent_total",
			Help: "Outbound events queued to sockets, by type",
		},
		[]string{"type"},
	)

	WSDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_disconnects_total",
			Help: "Closed connections by reason",
		},
		[]string{"reason"}, // "closed", "heartbeat", "slow_consumer", "limit", "shutdown"
	)

	WSHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_ws_handler_duration_seconds",
			Help:    "Time spent handling one inbound frame",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"type"},
	)

	SessionLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_lookups_total",
			Help: "Handshake session lookups by result",
		},
		[]string{"result"}, // "ok", "unauthenticated", "timeout", "error"
	)

	SessionLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_session_lookup_duration_seconds",
			Help:    "Session store lookup latency during the upgrade handshake",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)

	HTTPPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_http_panics_total",
			Help: "Handler panics recovered by the HTTP middleware",
		},
	)
)
