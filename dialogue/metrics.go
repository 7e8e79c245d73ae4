package dialogue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for dialogue sessions.
//
// Metrics exposed (all namespaced with "a2a_"):
//
//   - turn_latency_seconds (histogram): duration of a turn including retries.
//     Labels: agent, provider, status (success/error).
//   - turns_total (counter): completed or failed turns. Labels: agent, status.
//   - retries_total (counter): retry attempts. Labels: agent, reason.
//   - tokens_total (counter): tokens reported by the backends.
//     Labels: agent, direction (input/output).
//   - sessions_in_flight (gauge): dialogues currently running.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := dialogue.NewMetrics(registry)
//	engine := dialogue.New(resolver, st, emitter, dialogue.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	turnLatency *prometheus.HistogramVec
	turns       *prometheus.CounterVec
	retries     *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	inflight    prometheus.Gauge
}

// NewMetrics creates and registers the dialogue metrics. A nil registry
// uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		turnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "a2a",
			Name:      "turn_latency_seconds",
			Help:      "Duration of an agent turn including retries",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"agent", "provider", "status"}),

		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "a2a",
			Name:      "turns_total",
			Help:      "Agent turns by outcome",
		}, []string{"agent", "status"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "a2a",
			Name:      "retries_total",
			Help:      "Retry attempts of agent turns",
		}, []string{"agent", "reason"}),

		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "a2a",
			Name:      "tokens_total",
			Help:      "Tokens reported by model backends",
		}, []string{"agent", "direction"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "a2a",
			Name:      "sessions_in_flight",
			Help:      "Dialogue sessions currently running",
		}),
	}
}

// RecordTurn records the outcome and duration of one turn.
func (m *Metrics) RecordTurn(agent, provider string, d time.Duration, status string) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(agent, provider, status).Observe(d.Seconds())
	m.turns.WithLabelValues(agent, status).Inc()
}

// IncrementRetries counts one retry of an agent turn.
func (m *Metrics) IncrementRetries(agent, reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(agent, reason).Inc()
}

// AddTokens adds the token counts of one response.
func (m *Metrics) AddTokens(agent string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.tokens.WithLabelValues(agent, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokens.WithLabelValues(agent, "output").Add(float64(output))
	}
}

// SessionStarted increments the in-flight gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// SessionFinished decrements the in-flight gauge.
func (m *Metrics) SessionFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
