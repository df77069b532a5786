package txmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics
var (
	transactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignite_transactions_sent_total",
			Help: "Transactions accepted by the ledger, by request kind",
		},
		[]string{"kind"},
	)

	transactionsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignite_transactions_confirmed_total",
			Help: "Transactions confirmed, by outcome (success or reverted)",
		},
		[]string{"outcome"},
	)
)

// Recovery metrics
var (
	feeBumps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ignite_transactions_fee_bumps_total",
		Help: "Same-nonce resubmissions with an escalated fee",
	})

	drops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ignite_transactions_dropped_total",
		Help: "Transactions evicted before inclusion and resent",
	})

	superseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ignite_transactions_superseded_total",
		Help: "Fee bump attempts made obsolete by an earlier hash being mined",
	})

	transportRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ignite_transactions_transport_retries_total",
			Help: "Retries of transient ledger transport failures, by operation",
		},
		[]string{"op"},
	)
)

// Latency metrics
var (
	confirmationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ignite_transactions_confirmation_seconds",
		Help:    "Time from first send to confirmation",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})
)
