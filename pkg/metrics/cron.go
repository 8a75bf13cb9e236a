package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics is keyed by job name. A zero value, or one built without a
// registerer, records nothing.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	items    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs:     counterVec("cron_job_runs_total", "Cron job runs by outcome.", "job", "outcome"),
		items:    counterVec("cron_job_items_total", "Items handled by cron jobs.", "job"),
		duration: secondsVec("cron_job_duration_seconds", "Duration of cron job runs.", "job"),
	}
	reg.MustRegister(m.runs, m.items, m.duration)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) { c.run(job, "success") }

func (c *CronJobMetrics) IncFailure(job string) { c.run(job, "failure") }

func (c *CronJobMetrics) run(job, outcome string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

// AddProcessed counts items (e.g. expired sessions) handled by one run.
func (c *CronJobMetrics) AddProcessed(job string, n int) {
	if c == nil || c.items == nil || n <= 0 {
		return
	}
	c.items.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}
