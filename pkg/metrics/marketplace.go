package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics instruments calls to the marketplace backend.
type MarketplaceMetrics struct {
	requests     *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
}

func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "marketplace_request_duration_seconds",
		Help:      "Marketplace backend request latency by operation and status.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"operation", "status"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "marketplace_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"breaker"})
	reg.MustRegister(requests, breakerState)
	return &MarketplaceMetrics{requests: requests, breakerState: breakerState}
}

// ObserveRequest records one backend call. status 0 means a transport failure.
func (m *MarketplaceMetrics) ObserveRequest(operation string, status int, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(normalizeLabel(operation), label).Observe(d.Seconds())
}

func (m *MarketplaceMetrics) SetBreakerState(name string, state int) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.WithLabelValues(normalizeLabel(name)).Set(float64(state))
}
