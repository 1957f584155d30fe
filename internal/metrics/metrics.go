package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_messages_consumed_total",
			Help: "Total number of vitals messages consumed from the bus",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_messages_dropped_total",
			Help: "Total number of malformed messages dropped",
		},
		[]string{"reason"},
	)

	ReadingsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_readings_stored_total",
			Help: "Total number of readings persisted",
		},
	)

	AlertsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_alerts_sent_total",
			Help: "Total number of alerts dispatched to the notification channel",
		},
	)

	AlertsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_alerts_failed_total",
			Help: "Total number of alert dispatch failures after retries",
		},
	)

	HandleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_handle_failures_total",
			Help: "Total number of message handling failures left for redelivery",
		},
		[]string{"kind"},
	)
)
