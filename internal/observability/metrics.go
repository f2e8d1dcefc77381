package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all coordinator metrics
type Metrics struct {
	TransactionsTotal   *prometheus.CounterVec
	ActiveTransactions  prometheus.Gauge
	TransactionDuration *prometheus.HistogramVec
	SubscriberFailures  prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of transaction lifecycle events by mode and event",
			},
			[]string{"mode", "event"},
		),
		ActiveTransactions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_transactions",
				Help:      "Number of transactions created and not yet disposed",
			},
		),
		TransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Time from transaction creation to disposal in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		SubscriberFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriber_failures_total",
				Help:      "Total number of notification subscriber failures",
			},
		),
	}

	reg.MustRegister(
		m.TransactionsTotal,
		m.ActiveTransactions,
		m.TransactionDuration,
		m.SubscriberFailures,
	)

	return m
}
