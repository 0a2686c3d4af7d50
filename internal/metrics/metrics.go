package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerhub_messages_received_total",
			Help: "Inbound broker messages by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerhub_messages_dropped_total",
			Help: "Inbound broker messages dropped because the subscriber queue was full",
		},
		[]string{"filter"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playerhub_handler_duration_seconds",
			Help:    "Time spent handling one inbound broker message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"filter"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerhub_publish_failures_total",
			Help: "Publishes that were not acknowledged after all retries, by client role",
		},
		[]string{"role"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerhub_rate_limited_total",
			Help: "Rejected rate limit checks by rule",
		},
		[]string{"rule"},
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playerhub_duplicates_dropped_total",
			Help: "Retransmitted events collapsed by the deduplicator",
		},
	)

	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerhub_commands_dispatched_total",
			Help: "Player commands by type and outcome",
		},
		[]string{"command_type", "outcome"},
	)

	CertificatesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerhub_certificates_total",
			Help: "Certificate lifecycle operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)
