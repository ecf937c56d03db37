// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stockroom"

var (
	// MovementsRecorded counts ledger appends.
	// Labels: kind (inbound, outbound)
	MovementsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "movements_total",
		Help:      "Stock movements appended to the ledger",
	}, []string{"kind"})

	// UnitsMoved sums the quantities of appended movements.
	// Labels: kind (inbound, outbound)
	UnitsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "units_total",
		Help:      "Units moved in or out of stock",
	}, []string{"kind"})

	// MovementsRejected counts movements refused by the store.
	// Labels: reason (not_found, validation, insufficient_stock, persistence)
	MovementsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "rejected_total",
		Help:      "Stock movements rejected before reaching the ledger",
	}, []string{"reason"})

	// PersistenceFailures counts snapshot writes that did not complete.
	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "write_failures_total",
		Help:      "Snapshot writes that failed",
	})

	// Backups counts backup attempts.
	// Labels: status (success, error)
	Backups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "backups_total",
		Help:      "Backup attempts by outcome",
	}, []string{"status"})
)
