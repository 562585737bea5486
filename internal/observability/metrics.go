package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelConnected = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_sync", Name: "channel_connected", Help: "1 while the realtime channel is open"})
	ChannelDials     = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "channel_dials_total", Help: "Realtime channel dial attempts"},
		[]string{"outcome"},
	)
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sync", Name: "frames_received_total", Help: "Frames read from the realtime channel"})
	FramesDropped  = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "frames_dropped_total", Help: "Frames discarded by the normalizer"},
		[]string{"reason"},
	)

	NotificationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "notifications_applied_total", Help: "Notifications folded into role state"},
		[]string{"role", "kind"},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "commands_total", Help: "Commands issued to the backend"},
		[]string{"command", "outcome"},
	)
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_sync",
			Name:      "command_duration_seconds",
			Help:      "Command round-trip latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	HistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "history_fetches_total", Help: "History page fetches"},
		[]string{"subject", "outcome"},
	)

	TapPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "tap_published_total", Help: "Notifications published to the event tap"},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sync", Name: "http_requests_total", Help: "Total panel HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_sync",
			Name:      "http_request_duration_seconds",
			Help:      "Panel HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// LiveClients exports count as the number of connected live-feed clients.
// It registers with the default registry and must be called once.
func LiveClients(count func() int) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "ride_sync", Name: "live_clients", Help: "Panel clients connected to the live feed"},
		func() float64 { return float64(count()) },
	)
}
