package reconciliation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriptionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_subscriptions_created_total",
		Help: "Subscriptions created together with their initial ledger entry.",
	})

	cyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_cycles_completed_total",
		Help: "Paid transitions that advanced a subscription and minted the next cycle.",
	})

	duplicateTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_duplicate_paid_transitions_total",
		Help: "Mark-paid calls suppressed because the payment was already paid.",
	})
)
