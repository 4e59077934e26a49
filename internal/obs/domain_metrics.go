package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics groups the instant-payment domain collectors. A nil receiver
// disables observation, so handlers do not need to guard every call site.
type PaymentMetrics struct {
	InitTotal         *prometheus.CounterVec
	ConfirmationTotal *prometheus.CounterVec
	ConfirmationWait  prometheus.Histogram
}

// NewPaymentMetrics registers and returns the domain collectors.
func NewPaymentMetrics(namespace string, reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PaymentMetrics{
		InitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_init_total",
			Help:      "Count of payment initiation outcomes.",
		}, []string{"result"}),
		ConfirmationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirmation_total",
			Help:      "Count of confirmation subscription outcomes by terminal status.",
		}, []string{"status"}),
		ConfirmationWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_confirmation_wait_seconds",
			Help:      "Time spent waiting for a payment confirmation in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),
	}
	mustRegisterCollector(reg, m.InitTotal, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.InitTotal = v
		}
	})
	mustRegisterCollector(reg, m.ConfirmationTotal, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.ConfirmationTotal = v
		}
	})
	mustRegisterCollector(reg, m.ConfirmationWait, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Histogram); ok {
			m.ConfirmationWait = v
		}
	})
	return m
}

// ObserveInit records one initiation outcome ("success" or "failure").
func (m *PaymentMetrics) ObserveInit(result string) {
	if m == nil || m.InitTotal == nil {
		return
	}
	m.InitTotal.WithLabelValues(result).Inc()
}

// ObserveConfirmation records one subscription outcome and its wait time.
func (m *PaymentMetrics) ObserveConfirmation(status string, wait time.Duration) {
	if m == nil {
		return
	}
	if m.ConfirmationTotal != nil {
		m.ConfirmationTotal.WithLabelValues(status).Inc()
	}
	if m.ConfirmationWait != nil {
		m.ConfirmationWait.Observe(wait.Seconds())
	}
}
