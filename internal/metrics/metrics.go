package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "converse_online_conns",
		Help: "Current online websocket connections.",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "converse_online_users",
		Help: "Current users with at least one websocket connection.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "converse_messages_sent_total",
		Help: "Total messages persisted via the realtime send path.",
	})
	StatusUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_message_status_updates_total",
		Help: "Total message status advances, by resulting status.",
	}, []string{"status"})

	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "converse_ws_frames_dropped_total",
		Help: "Total outbound frames dropped because a connection queue was full.",
	})
	HandshakeRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "converse_ws_handshake_rejected_total",
		Help: "Total websocket handshakes rejected, by reason.",
	}, []string{"reason"})
)

func Register() {
	prometheus.MustRegister(
		OnlineConns, OnlineUsers,
		MessagesSent, StatusUpdates,
		FramesDropped, HandshakeRejected,
	)
}
