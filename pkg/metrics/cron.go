package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	cronStatusSuccess = "success"
	cronStatusFailure = "failure"
	cronStatusSkipped = "skipped"
)

// CronJobMetrics records scheduled job runs by outcome.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron job metrics on reg. A nil reg yields
// a recorder that drops everything.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of executed cron jobs in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job runs by job and outcome.",
	}, []string{"job", "status"})
	reg.MustRegister(duration, runs)
	return &CronJobMetrics{duration: duration, runs: runs}
}

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) { c.inc(job, cronStatusSuccess) }

func (c *CronJobMetrics) IncFailure(job string) { c.inc(job, cronStatusFailure) }

// IncSkipped counts a run abandoned because the job lock was held elsewhere.
func (c *CronJobMetrics) IncSkipped(job string) { c.inc(job, cronStatusSkipped) }

func (c *CronJobMetrics) inc(job, status string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), status).Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
