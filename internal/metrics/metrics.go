// Package metrics exposes Prometheus instruments for the transaction pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "transactions"

// Metrics implements the observer hooks of the risk gate, the broadcaster and
// the command service.
type Metrics struct {
	created      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	riskFallback *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	streamDrops  prometheus.Counter
	subscribers  prometheus.Gauge
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "Transactions committed, by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Transactions refused, by reason.",
		}, []string{"reason"}),
		riskFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "fallback_total",
			Help:      "Risk decisions answered by local rules, by cause.",
		}, []string{"cause"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "breaker_state",
			Help:      "1 for the current circuit breaker state, 0 otherwise.",
		}, []string{"state"}),
		streamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_total",
			Help:      "Deliveries discarded because a subscriber fell behind.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Live stream subscribers.",
		}),
	}

	reg.MustRegister(m.created, m.rejected, m.riskFallback, m.breakerState, m.streamDrops, m.subscribers)
	return m
}

func (m *Metrics) TransactionCreated(txType string) {
	m.created.WithLabelValues(txType).Inc()
}

func (m *Metrics) TransactionRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RiskFallback(cause string) {
	m.riskFallback.WithLabelValues(cause).Inc()
}

func (m *Metrics) RiskBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.breakerState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) StreamDropped() {
	m.streamDrops.Inc()
}

func (m *Metrics) StreamSubscribers(n int) {
	m.subscribers.Set(float64(n))
}
