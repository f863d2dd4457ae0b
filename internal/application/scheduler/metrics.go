package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "roster"

// Outcome labels for completed jobs.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics exposes scheduler activity to Prometheus.
// A nil *Metrics records nothing.
type Metrics struct {
	Submitted  *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Completed  *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	QueueDepth prometheus.Gauge
	InFlight   prometheus.Gauge
}

// NewMetrics builds the scheduler collectors and registers them with reg.
// PRE: reg may be nil, in which case nothing is registered
// POST: returns collectors ready for use
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted into the queue.",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "jobs_rejected_total",
			Help:      "Jobs refused at submission.",
		}, []string{"kind", "reason"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "jobs_completed_total",
			Help:      "Jobs completed, by outcome.",
		}, []string{"kind", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Time from worker pickup to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "scheduler",
			Name:      "jobs_in_flight",
			Help:      "Jobs currently held by a worker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Rejected, m.Completed, m.Duration, m.QueueDepth, m.InFlight)
	}
	return m
}

func (m *Metrics) submitted(kind Kind, depth int) {
	if m == nil {
		return
	}
	m.Submitted.WithLabelValues(string(kind)).Inc()
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) rejected(kind Kind, reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(string(kind), reason).Inc()
}

func (m *Metrics) started(depth int) {
	if m == nil {
		return
	}
	m.InFlight.Inc()
	m.QueueDepth.Set(float64(depth))
}

func (m *Metrics) finished(c Completion, outcome string) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Completed.WithLabelValues(string(c.Kind), outcome).Inc()
	m.Duration.WithLabelValues(string(c.Kind)).Observe(c.Elapsed.Seconds())
}
