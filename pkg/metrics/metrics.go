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
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// ConversationsCreated tracks conversations created.
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_created_total",
			Help: "Total conversations created",
		},
	)

	// StatusTransitions tracks lifecycle transition attempts.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_status_transitions_total",
			Help: "Conversation status transitions by outcome",
		},
		[]string{"from", "to", "result"},
	)

	// StoreOperationDuration tracks persistence gateway latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_store_operation_duration_seconds",
			Help:    "Conversation store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// EventsPublished tracks lifecycle events sent to NATS.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation lifecycle events published",
		},
		[]string{"type", "status"},
	)

	// NATSStreamMessages tracks messages in the events stream.
	NATSStreamMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_messages",
			Help: "Number of messages in NATS stream",
		},
		[]string{"stream"},
	)

	// NATSStreamBytes tracks bytes in the events stream.
	NATSStreamBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nats_stream_bytes",
			Help: "Bytes in NATS stream",
		},
		[]string{"stream"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordTransition records the outcome of a status transition.
func RecordTransition(from, to string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	StatusTransitions.WithLabelValues(from, to, result).Inc()
}

// RecordStoreOperation records a persistence gateway call.
func RecordStoreOperation(operation string, err error, duration float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordEvent records a publish attempt.
func RecordEvent(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordStreamState records stream size gauges.
func RecordStreamState(stream string, messages, bytes uint64) {
	NATSStreamMessages.WithLabelValues(stream).Set(float64(messages))
	NATSStreamBytes.WithLabelValues(stream).Set(float64(bytes))
}
