package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	latency      prometheus.Histogram
	instructions *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the collectors tracking transaction execution.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowchain",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Count of executed transactions by receipt status.",
			}, []string{"status"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "escrowchain",
				Subsystem: "ledger",
				Name:      "transaction_duration_seconds",
				Help:      "Time spent executing and committing a transaction.",
				Buckets:   prometheus.DefBuckets,
			}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowchain",
				Subsystem: "ledger",
				Name:      "instructions_total",
				Help:      "Count of program invocations, including cross-program calls.",
			}, []string{"program", "outcome"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transactions,
			ledgerRegistry.latency,
			ledgerRegistry.instructions,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveTransaction(status string, duration time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.transactions.WithLabelValues(status).Inc()
	m.latency.Observe(duration.Seconds())
}

func (m *LedgerMetrics) ObserveInstruction(program string, err error) {
	if m == nil {
		return
	}
	if program == "" {
		program = "unknown"
	}
	m.instructions.WithLabelValues(program, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
