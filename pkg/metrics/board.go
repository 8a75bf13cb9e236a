package metrics

import "github.com/prometheus/client_golang/prometheus"

// BoardMetrics tracks seller status mutations and history drift seen on backend orders.
type BoardMetrics struct {
	mutations *prometheus.CounterVec
	drift     prometheus.Counter
}

func NewBoardMetrics(reg prometheus.Registerer) *BoardMetrics {
	if reg == nil {
		return &BoardMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seller_status_mutations_total",
		Help:      "Seller status changes by target status and outcome.",
	}, []string{"to", "outcome"})
	drift := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "seller_order_history_drift_total",
		Help:      "Backend orders whose status history disagrees with their status.",
	})
	reg.MustRegister(mutations, drift)
	return &BoardMetrics{mutations: mutations, drift: drift}
}

func (m *BoardMetrics) Mutation(to, outcome string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(to), normalizeLabel(outcome)).Inc()
}

func (m *BoardMetrics) HistoryDrift() {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Inc()
}
