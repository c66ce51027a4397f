package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bflow_relay_events_total",
			Help: "Outbox rows handled by the relay, by outcome",
		},
		[]string{"outcome"}, // processed|skipped|failed|dlq
	)

	ConsumerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bflow_consumer_events_total",
			Help: "Log entries handled by consumers, by consumer and outcome",
		},
		[]string{"consumer", "outcome"}, // completed|skipped|retried|dlq
	)

	DLQWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bflow_dlq_write_failures_total",
			Help: "Failed dead-letter inserts (poison message kept pending)",
		},
	)

	PublishLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bflow_publish_lag_seconds",
			Help:    "published_at minus occurred_at per relayed event",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		RelayEventsTotal,
		ConsumerEventsTotal,
		DLQWriteFailuresTotal,
		PublishLagSeconds,
	)
}
