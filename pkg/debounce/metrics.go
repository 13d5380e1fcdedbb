package debounce

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by a Scheduler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	scheduled   *prometheus.CounterVec
	coalesced   *prometheus.CounterVec
	superseded  *prometheus.CounterVec
	invocations *prometheus.CounterVec
	inFlight    *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the scheduler collectors and registers them with reg.
// Passing nil skips registration (useful when several schedulers share a process
// and only one should export).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyscope",
			Subsystem: "debounce",
			Name:      "scheduled_total",
			Help:      "Schedule calls received per action.",
		}, []string{"action"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyscope",
			Subsystem: "debounce",
			Name:      "coalesced_total",
			Help:      "Pending timers cancelled by a newer Schedule call.",
		}, []string{"action"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyscope",
			Subsystem: "debounce",
			Name:      "superseded_total",
			Help:      "Queued payloads overwritten before they could run.",
		}, []string{"action"}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skyscope",
			Subsystem: "debounce",
			Name:      "invocations_total",
			Help:      "Completed action invocations by outcome.",
		}, []string{"action", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "skyscope",
			Subsystem: "debounce",
			Name:      "in_flight",
			Help:      "Action invocations currently executing.",
		}, []string{"action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "skyscope",
			Subsystem: "debounce",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of action invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(m.scheduled, m.coalesced, m.superseded, m.invocations, m.inFlight, m.duration)
	}
	return m
}

func (m *Metrics) onScheduled(action string, replaced bool) {
	if m == nil {
		return
	}
	m.scheduled.WithLabelValues(action).Inc()
	if replaced {
		m.coalesced.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) onSuperseded(action string) {
	if m == nil {
		return
	}
	m.superseded.WithLabelValues(action).Inc()
}

func (m *Metrics) onStart(action string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(action).Inc()
}

func (m *Metrics) onFinish(action string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.inFlight.WithLabelValues(action).Dec()
	m.invocations.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}
