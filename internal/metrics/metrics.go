// Package metrics exposes the EPS admission control core's counters and
// gauges to Prometheus, implementing epslimiter.Recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one daemon's limiter.
type Metrics struct {
	Credits        *prometheus.GaugeVec
	CreditCapacity *prometheus.GaugeVec
	WaitCounter    *prometheus.GaugeVec
	Admitted       *prometheus.CounterVec
	Retired        *prometheus.CounterVec
	Coercions      *prometheus.CounterVec
}

// New creates and registers the collectors against reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"daemon"}

	return &Metrics{
		Credits: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eps_limiter_credits_available",
				Help: "Credits currently available in the admission pool.",
			},
			labels,
		),
		CreditCapacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eps_limiter_credit_capacity",
				Help: "Maximum events admissible per timeframe (max_eps * timeframe_eps).",
			},
			labels,
		),
		WaitCounter: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eps_limiter_wait_counter",
				Help: "Callers currently blocked waiting for a credit.",
			},
			labels,
		),
		Admitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eps_limiter_admitted_total",
				Help: "Total events admitted through the credit gate.",
			},
			labels,
		),
		Retired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eps_limiter_retired_total",
				Help: "Total consumed credits retired from the sliding window and regenerated.",
			},
			labels,
		),
		Coercions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eps_limiter_config_coercions_total",
				Help: "Total times a loaded configuration field was coerced to a safe value.",
			},
			[]string{"daemon", "field"},
		),
	}
}

// Recorder adapts Metrics to epslimiter.Recorder for a single daemon,
// binding the "daemon" label on every collector.
type Recorder struct {
	m          *Metrics
	daemonName string
}

// NewRecorder binds m to daemonName's label values.
func NewRecorder(m *Metrics, daemonName string) *Recorder {
	return &Recorder{m: m, daemonName: daemonName}
}

// SetCredits implements epslimiter.Recorder.
func (r *Recorder) SetCredits(value, capacity int) {
	r.m.Credits.WithLabelValues(r.daemonName).Set(float64(value))
	r.m.CreditCapacity.WithLabelValues(r.daemonName).Set(float64(capacity))
}

// SetWaitCounter implements epslimiter.Recorder.
func (r *Recorder) SetWaitCounter(n int) {
	r.m.WaitCounter.WithLabelValues(r.daemonName).Set(float64(n))
}

// IncAdmitted implements epslimiter.Recorder.
func (r *Recorder) IncAdmitted() {
	r.m.Admitted.WithLabelValues(r.daemonName).Inc()
}

// IncRetired implements epslimiter.Recorder.
func (r *Recorder) IncRetired(n int) {
	r.m.Retired.WithLabelValues(r.daemonName).Add(float64(n))
}

// IncCoercion implements epslimiter.Recorder.
func (r *Recorder) IncCoercion(field string) {
	r.m.Coercions.WithLabelValues(r.daemonName, field).Inc()
}
