package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_webhooks_received_total",
		Help: "Webhooks accepted for processing, by route",
	}, []string{"route"})

	WebhooksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_webhooks_rejected_total",
		Help: "Webhooks rejected before processing, by reason",
	}, []string{"reason"})

	WebhooksCached = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_webhooks_cached_total",
		Help: "Duplicate deliveries answered from the event log",
	}, []string{"route"})

	EventsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_events_logged_total",
		Help: "Audit records appended, by status and outcome",
	}, []string{"status", "outcome"})

	ReplyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_reply_requests_total",
		Help: "Completion backend calls, by reply source and outcome",
	}, []string{"source", "outcome"})

	ReplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_service_reply_duration_seconds",
		Help:    "Time spent waiting for the completion backend",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
	})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_service_processing_duration_seconds",
		Help:    "End-to-end processing time of accepted webhooks",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_store_errors_total",
		Help: "Backing store failures that were tolerated, by operation",
	}, []string{"operation"})

	DatadogAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_service_datadog_alerts_total",
		Help: "Datadog webhooks, by outcome",
	}, []string{"outcome"})
)
