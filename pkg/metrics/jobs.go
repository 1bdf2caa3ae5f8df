package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records maintenance job runs and the stock state they observe.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	lowStock prometheus.Gauge
}

// NewJobMetrics registers the maintenance job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pharmacy_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pharmacy_job_runs_total",
		Help: "Maintenance job executions by result.",
	}, []string{"job", "result"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pharmacy_low_stock_medications",
		Help: "Active medications at or below their minimum threshold at the last sweep.",
	})
	reg.MustRegister(duration, runs, lowStock)
	return &JobMetrics{duration: duration, runs: runs, lowStock: lowStock}
}

func (m *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(jobLabel(job)).Observe(d.Seconds())
}

func (m *JobMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(jobLabel(job), "success").Inc()
}

func (m *JobMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(jobLabel(job), "failure").Inc()
}

// SetLowStock records how many medications the last sweep found below threshold.
func (m *JobMetrics) SetLowStock(n int) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Set(float64(n))
}

func jobLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
