package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GuardEnabled is 1 when executions are allowed.
	GuardEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_guard_enabled",
		Help: "Whether the execution guard currently allows trading (1/0)",
	})

	// GuardBalance is the last observed total quote balance.
	GuardBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_guard_balance",
		Help: "Total free quote balance across venues at the last check",
	})

	// GuardDisableThreshold is the current disable floor.
	GuardDisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_guard_disable_threshold",
		Help: "Balance below which trading is disabled",
	})

	// GuardEnableThreshold is the current re-enable floor.
	GuardEnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_guard_enable_threshold",
		Help: "Balance above which trading is re-enabled",
	})

	// GuardAvgTradeSize is the rolling average completed trade size.
	GuardAvgTradeSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_guard_avg_trade_size",
		Help: "Rolling average quote size of completed trades",
	})

	// GuardFailureStreak is the current consecutive failure count.
	GuardFailureStreak = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_guard_failure_streak",
		Help: "Consecutive failed executions since the last success",
	})

	// GuardStateChanges counts enable/disable transitions.
	GuardStateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_guard_state_changes_total",
		Help: "Guard enable/disable transitions",
	})

	// GuardCheckDuration observes balance check latency.
	GuardCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossarb_guard_check_duration_seconds",
		Help:    "Duration of one guard balance check",
		Buckets: prometheus.DefBuckets,
	})
)
