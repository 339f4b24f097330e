package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// PayoutMetrics tracks farmer payout runs and submissions.
type PayoutMetrics struct {
	created       prometheus.Counter
	creditApplied prometheus.Counter
	failures      prometheus.Counter
	submissions   *prometheus.CounterVec
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "farmer_payouts_created_total",
		Help: "Farmer payouts created by payout runs.",
	})
	creditApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "farmer_payout_credit_applied_total",
		Help: "Referral credit applied to farmer payouts, in currency units.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "farmer_payout_failures_total",
		Help: "Farmers whose payout transaction failed during a run.",
	})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farmer_payout_submissions_total",
		Help: "Farmer payout submissions by resulting status.",
	}, []string{"status"})
	reg.MustRegister(created, creditApplied, failures, submissions)
	return &PayoutMetrics{
		created:       created,
		creditApplied: creditApplied,
		failures:      failures,
		submissions:   submissions,
	}
}

// RecordCreated counts one payout and the credit applied to it.
func (p *PayoutMetrics) RecordCreated(credit decimal.Decimal) {
	if p == nil || p.created == nil {
		return
	}
	p.created.Inc()
	if credit.IsPositive() {
		p.creditApplied.Add(credit.InexactFloat64())
	}
}

// IncFailure counts a farmer whose payout could not be created.
func (p *PayoutMetrics) IncFailure() {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.Inc()
}

// IncSubmission counts a submission that ended in status.
func (p *PayoutMetrics) IncSubmission(status string) {
	if p == nil || p.submissions == nil {
		return
	}
	p.submissions.WithLabelValues(normalizeLabel(status)).Inc()
}
