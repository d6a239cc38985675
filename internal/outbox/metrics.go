package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of progression events successfully published to Kafka.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of progression events whose first delivery attempt failed.",
	}, []string{"event_type"})

	deliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "progression",
		Subsystem: "outbox",
		Name:      "delivery_duration_seconds",
		Help:      "Time spent resolving the schema and writing one event.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "progression",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of progression events parked in the dead-letter table, labeled by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, deliveryDuration, dlqCounter)
}
