// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsReceivedTotal tracks push events received from the transport.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_received_total",
			Help: "Push events received, by named event",
		},
		[]string{"event"},
	)

	// EventsDeduplicatedTotal tracks events discarded as duplicates.
	EventsDeduplicatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_deduplicated_total",
			Help: "Events discarded by the dedup rules, by matching rule",
		},
		[]string{"rule"},
	)

	// EventsMalformedTotal tracks events dropped for missing content.
	EventsMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_events_malformed_total",
			Help: "Incoming events dropped for missing required fields",
		},
	)

	// JoinsSentTotal tracks room join messages sent over the transport.
	JoinsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_joins_sent_total",
			Help: "Room join messages sent, by room kind",
		},
		[]string{"kind"},
	)

	// ReconnectsTotal tracks transport reconnections.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Transport reconnections",
		},
	)

	// SendsDroppedTotal tracks outbound messages dropped while disconnected.
	SendsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_sends_dropped_total",
			Help: "Outbound messages dropped because the transport was not connected",
		},
	)

	// HistoryFetchDuration tracks history snapshot fetch duration.
	HistoryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_history_fetch_duration_seconds",
			Help:    "History snapshot fetch duration",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"room_kind", "status"},
	)

	// ConsumersActive tracks mounted room consumers.
	ConsumersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_consumers_active",
			Help: "Mounted room consumers, by surface",
		},
		[]string{"surface"},
	)

	// StreamEventsStored tracks events retained in the JetStream log.
	StreamEventsStored = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_events_stored",
			Help: "Events retained in the stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHistoryFetch records a history snapshot fetch.
func RecordHistoryFetch(roomKind, status string, duration float64) {
	HistoryFetchDuration.WithLabelValues(roomKind, status).Observe(duration)
}
