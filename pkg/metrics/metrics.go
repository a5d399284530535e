package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zaichik_connections_active",
			Help: "Number of currently open client connections",
		},
	)

	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zaichik_connections_total",
			Help: "Total number of client connections accepted",
		},
	)

	// Topic metrics
	TopicsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zaichik_topics_total",
			Help: "Total number of registered topics",
		},
	)

	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zaichik_messages_published_total",
			Help: "Total number of messages published by topic",
		},
		[]string{"topic"},
	)

	RetainedMessages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zaichik_retained_messages",
			Help: "Number of messages currently held in the retention list by topic",
		},
		[]string{"topic"},
	)

	// Subscription metrics
	SubscriptionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zaichik_subscriptions_active",
			Help: "Number of currently active subscriptions across all connections",
		},
	)

	MessagesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zaichik_messages_delivered_total",
			Help: "Total number of messages delivered to subscribers by topic",
		},
		[]string{"topic"},
	)

	SubscriptionsLagged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zaichik_subscriptions_lagged_total",
			Help: "Total number of subscriptions dropped after falling behind the broadcast buffer",
		},
		[]string{"topic"},
	)

	// Protocol metrics
	FramesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zaichik_frames_rejected_total",
			Help: "Total number of frames rejected as malformed, oversized or unknown",
		},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zaichik_command_duration_seconds",
			Help:    "Command handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		ConnectionsTotal,
		TopicsTotal,
		MessagesPublished,
		RetainedMessages,
		SubscriptionsActive,
		MessagesDelivered,
		SubscriptionsLagged,
		FramesRejected,
		CommandDuration,
	)
}

// ObserveCommand records the handling latency of one command.
func ObserveCommand(command string, start time.Time) {
	CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts the metrics and health HTTP server on addr. It blocks, so
// callers run it in a goroutine; errors other than a clean shutdown are
// returned.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/health", HealthHandler())
	mux.Handle("/ready", ReadyHandler())
	return http.ListenAndServe(addr, mux)
}
