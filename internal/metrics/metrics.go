// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for connection and room counts, counters for message and
// event throughput, and a histogram for REST latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of authenticated WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// RoomsActive tracks the number of conversations with at least one subscriber.
	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_rooms_active",
		Help: "Current number of realtime rooms with subscribers",
	})

	// MessagesTotal counts send attempts by outcome.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of message send attempts",
	}, []string{"outcome"}) // outcome = "sent", "system", "blocked", "forbidden", "rate_limited", "error"

	// EventsTotal counts realtime events by direction and type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Realtime events published to rooms or received from clients",
	}, []string{"direction", "type"}) // direction = "published", "delivered", "received", "dropped"

	// HTTPDuration records REST request latency in seconds.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_http_request_duration_seconds",
		Help:    "REST request latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route", "status"})

	// ReportsTotal counts moderation reports by resulting status.
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_reports_total",
		Help: "Moderation reports created and status transitions",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		RoomsActive,
		MessagesTotal,
		EventsTotal,
		HTTPDuration,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
