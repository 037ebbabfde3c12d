package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EscrowMetrics struct {
	operations *prometheus.CounterVec
	locked     prometheus.Counter
	released   *prometheus.CounterVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the collectors tracking escrow program activity. Counters
// are updated as instructions run, so failed transactions are included in
// operations but their amounts are only counted once the program succeeds.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowchain",
				Subsystem: "escrow",
				Name:      "operations_total",
				Help:      "Count of escrow instructions by operation and outcome.",
			}, []string{"operation", "outcome"}),
			locked: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "escrowchain",
				Subsystem: "escrow",
				Name:      "deposited_amount_total",
				Help:      "Token units moved into escrow vaults.",
			}),
			released: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowchain",
				Subsystem: "escrow",
				Name:      "released_amount_total",
				Help:      "Token units moved out of escrow vaults by destination.",
			}, []string{"destination"}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.locked,
			escrowRegistry.released,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *EscrowMetrics) ObserveDeposit(amount uint64) {
	if m == nil {
		return
	}
	m.locked.Add(float64(amount))
}

// ObserveRelease records a payout to the taker ("taker") or back to the
// maker ("maker").
func (m *EscrowMetrics) ObserveRelease(destination string, amount uint64) {
	if m == nil {
		return
	}
	m.released.WithLabelValues(destination).Add(float64(amount))
}
