package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transitions_total",
			Help: "Escrow transitions attempted, by event and result kind",
		},
		[]string{"event", "result"},
	)

	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_transition_duration_seconds",
			Help:    "Duration of escrow transitions including lock waits",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 3, 5},
		},
		[]string{"event"},
	)

	WalletOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Wallet primitives executed, by operation and result kind",
		},
		[]string{"operation", "result"},
	)

	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_lock_busy_total",
			Help: "Operations that gave up waiting for a row lock",
		},
		[]string{"operation"},
	)

	ReconcileMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_reconcile_mismatch_total",
			Help: "Wallets whose ledger sums disagree with stored balances",
		},
	)

	ReconcileRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_reconcile_runs_total",
			Help: "Completed reconciliation sweeps",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_events_dropped_total",
			Help: "Domain events dropped because the outbound queue was full",
		},
		[]string{"type"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_events_delivered_total",
			Help: "Domain event deliveries by sink and result",
		},
		[]string{"sink", "result"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escrow_event_queue_depth",
			Help: "Events waiting in the outbound queue",
		},
	)
)

// Result labels a metric with "ok" or the error kind.
func Result(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}
