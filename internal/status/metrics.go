package status

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgard/chatbridge/internal/staleness"
)

const namespace = "chatbridge"

// Metrics holds the Prometheus collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	decisions    *prometheus.CounterVec
	streak       prometheus.Gauge
	transitions  *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staleness",
			Name:      "decisions_total",
			Help:      "Staleness guard decisions by outcome.",
		}, []string{"decision"}),
		streak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "staleness",
			Name:      "streak",
			Help:      "Current number of consecutive stale messages.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staleness",
			Name:      "transitions_total",
			Help:      "Stale streak counter transitions by operation.",
		}, []string{"op"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_seconds",
			Help:      "Duration of model reply requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"backend", "outcome"}),
	}

	collectors := []prometheus.Collector{
		m.decisions,
		m.streak,
		m.transitions,
		m.modelLatency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	// Pre-create label values so the series exist before the first message.
	for _, k := range []staleness.Kind{staleness.Fresh, staleness.Stale, staleness.Blocked} {
		m.decisions.WithLabelValues(k.String())
	}

	return m, nil
}

// Registry exposes the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision counts a guard decision.
func (m *Metrics) ObserveDecision(d staleness.Decision) {
	m.decisions.WithLabelValues(d.Kind.String()).Inc()
}

// ObserveModelRequest records the duration of a model call.
func (m *Metrics) ObserveModelRequest(backend, outcome string, elapsed time.Duration) {
	m.modelLatency.WithLabelValues(backend, outcome).Observe(elapsed.Seconds())
}

// Observer returns a staleness observer keeping the streak gauge and the
// transition counter in sync with the guard.
func (m *Metrics) Observer() staleness.Observer {
	return func(t staleness.Transition) {
		m.transitions.WithLabelValues(string(t.Op)).Inc()
		m.streak.Set(float64(t.To))
	}
}
