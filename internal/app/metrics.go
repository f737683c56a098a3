package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Name:      "commands_submitted_total",
		Help:      "Commands accepted, per kind.",
	}, []string{"kind"})

	commandsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Name:      "commands_resolved_total",
		Help:      "Commands that reached a terminal status, per kind and outcome.",
	}, []string{"kind", "status"})

	transferOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Name:      "transfer_outcomes_total",
		Help:      "Transfer sagas that reached a terminal phase.",
	}, []string{"outcome"})

	conflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Name:      "version_conflict_retries_total",
		Help:      "Optimistic concurrency conflicts that triggered a retry.",
	})

	stuckTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bankaccounts",
		Name:      "stuck_transfers",
		Help:      "Sagas parked at STUCK awaiting operator intervention.",
	})

	sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Name:      "reconciler_sweeps_total",
		Help:      "Reconciliation sweeps executed.",
	})

	sweepRedriven = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Name:      "reconciler_redriven_total",
		Help:      "Overdue sagas re-driven by the reconciler.",
	})
)
