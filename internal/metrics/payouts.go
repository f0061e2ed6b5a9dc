package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

// PayoutMetrics counts payout lifecycle events. The zero value and a nil
// pointer are both safe to call.
type PayoutMetrics struct {
	transitions    *prometheus.CounterVec
	amount         *prometheus.CounterVec
	ledgerFailures prometheus.Counter
	sales          *prometheus.CounterVec
}

func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_transitions_total",
		Help:      "Payout status transitions by target status.",
	}, []string{"status"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_amount_minor_total",
		Help:      "Sum of payout amounts in minor units by target status.",
	}, []string{"status"})
	ledgerFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_ledger_failures_total",
		Help:      "Approvals cancelled because the wallet debit failed.",
	})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sales_recorded_total",
		Help:      "Sale events by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(transitions, amount, ledgerFailures, sales)
	return &PayoutMetrics{
		transitions:    transitions,
		amount:         amount,
		ledgerFailures: ledgerFailures,
		sales:          sales,
	}
}

func (m *PayoutMetrics) Transition(status string, amount int64) {
	if m == nil || m.transitions == nil {
		return
	}
	label := normalizeLabel(status)
	m.transitions.WithLabelValues(label).Inc()
	if amount > 0 {
		m.amount.WithLabelValues(label).Add(float64(amount))
	}
}

func (m *PayoutMetrics) LedgerFailure() {
	if m == nil || m.ledgerFailures == nil {
		return
	}
	m.ledgerFailures.Inc()
}

// Sale records a sale ingestion outcome: "recorded", "duplicate" or "reversed".
func (m *PayoutMetrics) Sale(outcome string) {
	if m == nil || m.sales == nil {
		return
	}
	m.sales.WithLabelValues(normalizeLabel(outcome)).Inc()
}
