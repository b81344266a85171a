package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prepforge/billing-service/pkg/logger"
)

// Исходы обработки вебхук-событий для метрик
const (
	WebhookOutcomeApplied    = "applied"
	WebhookOutcomeIgnored    = "ignored"
	WebhookOutcomeUnresolved = "unresolved"
	WebhookOutcomeFailed     = "failed"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncCheckoutStarted(plan string)
	IncCheckoutFailed(reason string)
	IncWebhookEvent(eventType, outcome string)
	ObserveWebhookDuration(eventType string, d time.Duration)
}

type billingMetrics struct {
	log              *logger.Logger
	checkoutsStarted *prometheus.CounterVec
	checkoutsFailed  *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	webhookDuration  *prometheus.HistogramVec
}

// NewBillingMetrics создает новые метрики биллинга
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	checkoutsStarted := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_started_total",
			Help: "The total number of started checkout sessions",
		},
		[]string{"plan"},
	)

	checkoutsFailed := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_failed_total",
			Help: "The total number of failed checkout attempts",
		},
		[]string{"reason"},
	)

	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "The total number of processed webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	webhookDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_webhook_duration_seconds",
			Help:    "Webhook event processing duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	return &billingMetrics{
		log:              log,
		checkoutsStarted: checkoutsStarted,
		checkoutsFailed:  checkoutsFailed,
		webhookEvents:    webhookEvents,
		webhookDuration:  webhookDuration,
	}
}

// IncCheckoutStarted увеличивает счетчик открытых checkout-сессий
func (m *billingMetrics) IncCheckoutStarted(plan string) {
	m.checkoutsStarted.WithLabelValues(plan).Inc()
}

// IncCheckoutFailed увеличивает счетчик неудачных попыток checkout
func (m *billingMetrics) IncCheckoutFailed(reason string) {
	m.checkoutsFailed.WithLabelValues(reason).Inc()
}

// IncWebhookEvent увеличивает счетчик вебхук-событий
func (m *billingMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// ObserveWebhookDuration записывает длительность обработки события
func (m *billingMetrics) ObserveWebhookDuration(eventType string, d time.Duration) {
	m.webhookDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

// NopBillingMetrics метрики-заглушка для тестов
type NopBillingMetrics struct{}

func (NopBillingMetrics) IncCheckoutStarted(string)                    {}
func (NopBillingMetrics) IncCheckoutFailed(string)                     {}
func (NopBillingMetrics) IncWebhookEvent(string, string)               {}
func (NopBillingMetrics) ObserveWebhookDuration(string, time.Duration) {}
