package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records gateway movement outcomes for the settlement engine.
type SettlementMetrics struct {
	payouts          *prometheus.CounterVec
	refunds          *prometheus.CounterVec
	reversalFailures prometheus.Counter
	webhookDuration  *prometheus.HistogramVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_payouts_total",
		Help: "Seller payout transfers attempted, by result.",
	}, []string{"result"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_refunds_total",
		Help: "Buyer refunds attempted, by result.",
	}, []string{"result"})
	reversalFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_reversal_failures_total",
		Help: "Transfer reversals that failed and were left for manual remediation.",
	})
	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_webhook_duration_seconds",
		Help:    "Duration of payment gateway webhook handling in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	reg.MustRegister(payouts, refunds, reversalFailures, webhookDuration)
	return &SettlementMetrics{
		payouts:          payouts,
		refunds:          refunds,
		reversalFailures: reversalFailures,
		webhookDuration:  webhookDuration,
	}
}

// IncPayout increments the payout counter for the given result.
func (m *SettlementMetrics) IncPayout(result string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncRefund increments the refund counter for the given result.
func (m *SettlementMetrics) IncRefund(result string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncReversalFailure counts a reversal left pending for an operator.
func (m *SettlementMetrics) IncReversalFailure() {
	if m == nil || m.reversalFailures == nil {
		return
	}
	m.reversalFailures.Inc()
}

// ObserveWebhookDuration records handling time for one webhook event type.
func (m *SettlementMetrics) ObserveWebhookDuration(eventType string, duration time.Duration) {
	if m == nil || m.webhookDuration == nil {
		return
	}
	m.webhookDuration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
