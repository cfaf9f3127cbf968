// Package metrics определяет прометеевские счётчики сервиса.
// Аномалии реконсилиации намеренно не превращаются в ошибки HTTP
// (провайдер не должен ретраить), поэтому счётчики — основной
// способ их заметить.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents количество принятых вебхуков по типу события и исходу:
	// applied, ignored, anomaly, error.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Billing provider webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// ReconcileAnomalies аномалии реконсилиации по причинам:
	// correlation_missing, unmatched_product, unknown_subscription.
	ReconcileAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_reconcile_anomalies_total",
		Help: "Webhook events acknowledged without a state transition.",
	}, []string{"reason"})

	// ChatRequests чат-запросы по исходу: allowed, denied, error, stream_error.
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_requests_total",
		Help: "Chat turn admissions by quota decision.",
	}, []string{"decision"})
)
