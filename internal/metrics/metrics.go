// Package metrics holds the Prometheus instruments of the call engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tableservice"

// Create outcomes.
const (
	OutcomeCreated     = "created"
	OutcomeExisting    = "existing"
	OutcomeUnavailable = "unavailable"
	OutcomeBlocked     = "blocked"
	OutcomeError       = "error"
)

type Metrics struct {
	CallsCreated       *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	TransitionConflict *prometheus.CounterVec
	Silences           *prometheus.CounterVec
	Unsilences         *prometheus.CounterVec
	MirrorFailures     prometheus.Counter
	StreamFailures     prometheus.Counter
	PushFailures       *prometheus.CounterVec
	BroadcastFailures  *prometheus.CounterVec
	ResponseTime       prometheus.Histogram
	Subscribers        prometheus.Gauge
}

// New registers every instrument against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CallsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_create_total",
			Help:      "Call creation attempts by outcome.",
		}, []string{"outcome"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_transitions_total",
			Help:      "Applied call status transitions by resulting status.",
		}, []string{"status"}),
		TransitionConflict: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_transition_rejected_total",
			Help:      "Rejected call transitions by reason.",
		}, []string{"reason"}),
		Silences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_silences_total",
			Help:      "Table silences activated by reason.",
		}, []string{"reason"}),
		Unsilences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_unsilences_total",
			Help:      "Table silences lifted, by trigger.",
		}, []string{"trigger"}),
		MirrorFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_write_failures_total",
			Help:      "Failed best-effort mirror writes.",
		}),
		StreamFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_stream_failures_total",
			Help:      "Failed domain event stream writes.",
		}),
		PushFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Failed push deliveries by provider.",
		}, []string{"provider"}),
		BroadcastFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_failures_total",
			Help:      "Failed channel publishes by transport.",
		}, []string{"transport"}),
		ResponseTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_response_seconds",
			Help:      "Time from call creation to acknowledgement.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscribers",
			Help:      "Open in-process channel subscriptions.",
		}),
	}
}

func (m *Metrics) CallCreate(outcome string) {
	if m == nil {
		return
	}
	m.CallsCreated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) TransitionRejected(reason string) {
	if m == nil {
		return
	}
	m.TransitionConflict.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveResponse(seconds float64) {
	if m == nil {
		return
	}
	m.ResponseTime.Observe(seconds)
}

func (m *Metrics) Silenced(reason string) {
	if m == nil {
		return
	}
	m.Silences.WithLabelValues(reason).Inc()
}

func (m *Metrics) Unsilenced(trigger string) {
	if m == nil {
		return
	}
	m.Unsilences.WithLabelValues(trigger).Inc()
}

func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.MirrorFailures.Inc()
}

func (m *Metrics) StreamFailed() {
	if m == nil {
		return
	}
	m.StreamFailures.Inc()
}

func (m *Metrics) PushFailed(provider string) {
	if m == nil {
		return
	}
	m.PushFailures.WithLabelValues(provider).Inc()
}

func (m *Metrics) BroadcastFailed(transport string) {
	if m == nil {
		return
	}
	m.BroadcastFailures.WithLabelValues(transport).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.Subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.Subscribers.Dec()
}
