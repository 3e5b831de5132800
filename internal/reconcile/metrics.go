package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	mismatchGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tapbridge",
		Subsystem: "reconcile",
		Name:      "balance_mismatches",
		Help:      "Number of balance mismatches corrected in the last reconciliation pass.",
	})

	adjustmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tapbridge",
		Subsystem: "reconcile",
		Name:      "adjustments_total",
		Help:      "Total ledger adjustments by result (credit, debit, failed).",
	}, []string{"result"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tapbridge",
		Subsystem: "reconcile",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation passes in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
	})

	runErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tapbridge",
		Subsystem: "reconcile",
		Name:      "errors_total",
		Help:      "Total run-level reconciliation failures.",
	})
)

func init() {
	prometheus.MustRegister(
		mismatchGauge,
		adjustmentsTotal,
		runDuration,
		runErrors,
	)
}
