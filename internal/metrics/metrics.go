// Package metrics holds the Prometheus collectors for the credit ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "credit_ledger"

// Result labels.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "operations_total",
	Help:      "Ledger operations by operation and result (ok, or the failure reason).",
}, []string{"operation", "result"})

var Credits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "credits_total",
	Help:      "Credits moved by committed operations.",
}, []string{"operation"})

var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "operation_duration_seconds",
	Help:      "Wall time of ledger operations including lock waits.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

var DegradedReads = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "degraded_reads_total",
	Help:      "Balance reads answered with zero because storage failed (fail-open mode).",
})

var BalanceDrift = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "balance_drift_total",
	Help:      "Times the cached balance disagreed with outstanding entry remainders.",
})

var AuditEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "audit",
	Name:      "events_total",
	Help:      "Audit events by delivery result (ok, error, dropped).",
}, []string{"result"})

var AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "audit",
	Name:      "queue_depth",
	Help:      "Audit events waiting for delivery.",
})

var SweepUsers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweep",
	Name:      "users_total",
	Help:      "Per-user expiration sweeps run by the scheduler, by result.",
}, []string{"result"})

// ObserveOperation records the outcome and duration of one ledger call.
func ObserveOperation(operation, result string, started time.Time) {
	Operations.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
