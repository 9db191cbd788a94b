package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WritesTotal tracks atomic state-file rewrites.
	WritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_ledger_writes_total",
		Help: "Total number of ledger state-file writes",
	})

	// WriteDurationSeconds tracks the marshal+fsync+rename latency.
	WriteDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossarb_ledger_write_duration_seconds",
		Help:    "Duration of atomic ledger writes",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// ActiveTrades reports the current number of in-flight entries.
	ActiveTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_ledger_active_trades",
		Help: "Number of trades currently in the active set",
	})

	// RecoveredTrades counts entries seen at startup by disposition.
	RecoveredTrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_ledger_recovered_trades_total",
			Help: "Trades found in the state file at startup",
		},
		[]string{"disposition"},
	)
)
