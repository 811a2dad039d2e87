package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics counts payment reconciliation outcomes per gateway.
type ReconcileMetrics struct {
	outcomes    *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// NewReconcileMetrics registers the reconciliation metrics on the provided registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_outcomes_total",
		Help: "Reconciliation results by gateway and result class.",
	}, []string{"gateway", "result"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_side_effect_failures_total",
		Help: "Best-effort side effects that failed after a paid transition.",
	}, []string{"effect"})
	reg.MustRegister(outcomes, sideEffects)
	return &ReconcileMetrics{outcomes: outcomes, sideEffects: sideEffects}
}

// IncOutcome records one reconciliation result for the named gateway.
// Result classes: applied, duplicate, failed_payment, amount_mismatch,
// order_not_found, rejected.
func (m *ReconcileMetrics) IncOutcome(gateway, result string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(result)).Inc()
}

// IncSideEffectFailure records a stock or notification side-effect failure.
func (m *ReconcileMetrics) IncSideEffectFailure(effect string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(effect)).Inc()
}
