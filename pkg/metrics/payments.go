package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks webhook intake and refund processing outcomes.
type PaymentMetrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	refunds         *prometheus.CounterVec
	refundedCents   *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment pipeline metrics on the provided
// registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook deliveries by type and outcome.",
	}, []string{"event_type", "outcome"})
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_webhook_duration_seconds",
		Help:    "Time spent processing one webhook delivery.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Processed refunds by mode and outcome.",
	}, []string{"mode", "outcome"})
	refundedCents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refunded_cents_total",
		Help: "Total refunded amount in minor units.",
	}, []string{"mode"})
	reg.MustRegister(webhookEvents, webhookDuration, refunds, refundedCents)
	return &PaymentMetrics{
		webhookEvents:   webhookEvents,
		webhookDuration: webhookDuration,
		refunds:         refunds,
		refundedCents:   refundedCents,
	}
}

// ObserveWebhook records one webhook delivery with its outcome label.
func (p *PaymentMetrics) ObserveWebhook(eventType, outcome string, duration time.Duration) {
	if p == nil || p.webhookEvents == nil {
		return
	}
	p.webhookEvents.WithLabelValues(jobLabel(eventType), jobLabel(outcome)).Inc()
	p.webhookDuration.WithLabelValues(jobLabel(eventType)).Observe(duration.Seconds())
}

// ObserveRefund records one refund attempt and, when successful, the
// refunded amount.
func (p *PaymentMetrics) ObserveRefund(mode, outcome string, amountCents int64) {
	if p == nil || p.refunds == nil {
		return
	}
	p.refunds.WithLabelValues(jobLabel(mode), jobLabel(outcome)).Inc()
	if outcome == "success" && amountCents > 0 {
		p.refundedCents.WithLabelValues(jobLabel(mode)).Add(float64(amountCents))
	}
}
