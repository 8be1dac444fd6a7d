package parallel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/igorfuzz/console/internal/runner"
)

const (
	OutcomeExited  = "exited"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics exposes pool activity as prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	submittedTotal prometheus.Counter
	jobsTotal      *prometheus.CounterVec
	running        prometheus.Gauge
	duration       *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg, or with the
// default registerer when reg is nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		submittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_jobs_submitted_total",
				Help:      "Total number of jobs submitted to the pool",
			},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pool_jobs_total",
				Help:      "Total number of finished jobs by outcome",
			},
			[]string{"outcome"},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_jobs_running",
				Help:      "Number of jobs currently running",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pool_job_duration_seconds",
				Help:      "Wall-clock duration of jobs",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.submittedTotal,
		m.jobsTotal,
		m.running,
		m.duration,
	)
	return m
}

func outcome(res runner.Result, err error) string {
	switch {
	case err != nil:
		return OutcomeError
	case res.TimedOut():
		return OutcomeTimeout
	default:
		return OutcomeExited
	}
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.submittedTotal.Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) finished(res runner.Result, err error, d time.Duration) {
	if m == nil {
		return
	}
	o := outcome(res, err)
	m.running.Dec()
	m.jobsTotal.WithLabelValues(o).Inc()
	m.duration.WithLabelValues(o).Observe(d.Seconds())
}
