package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the checkout state machine and payment outcomes.
type CheckoutMetrics struct {
	transitions   *prometheus.CounterVec
	payments      *prometheus.CounterVec
	orderCreation *prometheus.HistogramVec
	latchConflict prometheus.Counter
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_transitions_total",
		Help:      "Checkout session state transitions.",
	}, []string{"from", "to"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_payments_total",
		Help:      "Payment attempts by method and outcome.",
	}, []string{"method", "outcome"})
	orderCreation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_order_creation_seconds",
		Help:      "Time spent creating backend orders for a session.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	latchConflict := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_order_latch_conflicts_total",
		Help:      "Order creation attempts rejected because another caller held the latch.",
	})
	reg.MustRegister(transitions, payments, orderCreation, latchConflict)
	return &CheckoutMetrics{
		transitions:   transitions,
		payments:      payments,
		orderCreation: orderCreation,
		latchConflict: latchConflict,
	}
}

func (m *CheckoutMetrics) Transition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *CheckoutMetrics) Payment(method, outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) ObserveOrderCreation(outcome string, d time.Duration) {
	if m == nil || m.orderCreation == nil {
		return
	}
	m.orderCreation.WithLabelValues(normalizeLabel(outcome)).Observe(d.Seconds())
}

func (m *CheckoutMetrics) LatchConflict() {
	if m == nil || m.latchConflict == nil {
		return
	}
	m.latchConflict.Inc()
}
