package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesFound counts candidates surviving the per-tick filters.
	OpportunitiesFound = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_strategy_opportunities_found_total",
			Help: "Profitable opportunities surviving the scan filters",
		},
		[]string{"instrument"},
	)

	// OpportunitiesRejected counts gating rejections by reason.
	OpportunitiesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_strategy_opportunities_rejected_total",
			Help: "Opportunities rejected by the gating sequence",
		},
		[]string{"reason"},
	)

	// TradesTotal counts trade executions by outcome.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_strategy_trades_total",
			Help: "Two-leg trade executions by outcome",
		},
		[]string{"outcome"},
	)

	// PartialFillsTotal counts buy legs that filled below the threshold.
	PartialFillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_strategy_partial_fills_total",
		Help: "Buy legs filled below the partial-fill threshold",
	})

	// ActiveTrades reports the number of trade keys currently held.
	ActiveTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_strategy_active_trades",
		Help: "Trade keys currently locked by in-flight executions",
	})

	// ProfitRealized accumulates realized profit in quote currency.
	ProfitRealized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_strategy_profit_realized_total",
		Help: "Realized profit from completed trades, quote currency",
	})

	// ScanDurationSeconds observes the per-tick scan latency.
	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossarb_strategy_scan_duration_seconds",
		Help:    "Duration of one monitoring tick",
		Buckets: prometheus.DefBuckets,
	})
)
