package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcilePasses counts reconcile passes by outcome (success, error).
	ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reconcile_passes_total",
		Help: "Number of ledger reconcile passes by outcome",
	}, []string{"outcome"})

	// ReconcileDuration observes the wall time of a full reconcile pass.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_reconcile_duration_seconds",
		Help:    "Duration of ledger reconcile passes",
		Buckets: prometheus.DefBuckets,
	})

	// PositionsUpserted counts positions written during reconcile passes.
	PositionsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_positions_upserted_total",
		Help: "Number of positions upserted by the reconciler",
	})

	// PositionsDeleted counts positions removed during reconcile passes.
	PositionsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_positions_deleted_total",
		Help: "Number of positions deleted by the reconciler",
	})
)
