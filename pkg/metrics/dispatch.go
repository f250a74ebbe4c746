package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes.
const (
	OutcomeHandled   = "handled"
	OutcomeFailed    = "failed"
	OutcomeTerminal  = "terminal"
	OutcomeForwarded = "forwarded"
)

// DispatchMetrics counts outbox rows the dispatcher processed.
type DispatchMetrics struct {
	events *prometheus.CounterVec
	stuck  prometheus.Gauge
}

// NewDispatchMetrics registers the dispatcher metrics on reg. A nil reg
// yields a no-op recorder.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events processed by the dispatcher, by type and outcome.",
	}, []string{"event_type", "outcome"})
	stuck := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "stuck_events",
		Help:      "Unpublished outbox events that exhausted their attempts.",
	})
	reg.MustRegister(events, stuck)
	return &DispatchMetrics{events: events, stuck: stuck}
}

// Inc counts one event with the given outcome.
func (d *DispatchMetrics) Inc(eventType, outcome string) {
	if d == nil || d.events == nil {
		return
	}
	d.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// SetStuck records the current number of terminal rows.
func (d *DispatchMetrics) SetStuck(n int64) {
	if d == nil || d.stuck == nil {
		return
	}
	d.stuck.Set(float64(n))
}
