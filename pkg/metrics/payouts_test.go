package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func TestPayoutMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPayoutMetrics(reg)
	metrics.RecordCreated(decimal.RequireFromString("40.00"))
	metrics.RecordCreated(decimal.Zero)
	metrics.IncFailure()
	metrics.IncSubmission("completed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	created := findMetricFamily(mfs, "farmer_payouts_created_total")
	if created == nil || created.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected 2 payouts created, got %v", created)
	}
	credit := findMetricFamily(mfs, "farmer_payout_credit_applied_total")
	if credit == nil || credit.GetMetric()[0].GetCounter().GetValue() != 40 {
		t.Fatalf("expected credit applied 40, got %v", credit)
	}
	failures := findMetricFamily(mfs, "farmer_payout_failures_total")
	if failures == nil || failures.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected 1 failure, got %v", failures)
	}
	if got, err := fetchCounterValue(mfs, "farmer_payout_submissions_total", "status", "completed"); err != nil {
		t.Fatalf("fetch submissions: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 completed submission, got %f", got)
	}
}

func TestPayoutMetricsNilSafe(t *testing.T) {
	var metrics *PayoutMetrics
	metrics.RecordCreated(decimal.NewFromInt(1))
	metrics.IncFailure()
	metrics.IncSubmission("failed")

	NewPayoutMetrics(nil).RecordCreated(decimal.NewFromInt(1))
}
