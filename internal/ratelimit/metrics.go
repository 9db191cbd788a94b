package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AcquiresTotal tracks granted rate-limit tokens per venue.
	AcquiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_ratelimit_acquires_total",
			Help: "Total number of rate-limit tokens granted",
		},
		[]string{"venue"},
	)

	// ThrottleEventsTotal tracks throttling signals observed per venue.
	ThrottleEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_ratelimit_throttle_events_total",
			Help: "Total number of venue throttling signals",
		},
		[]string{"venue"},
	)

	// BackoffSeconds reports the backoff window currently applied per venue.
	BackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossarb_ratelimit_backoff_seconds",
			Help: "Backoff window applied after the latest throttle",
		},
		[]string{"venue"},
	)

	// AcquireWaitSeconds tracks how long callers block in Acquire.
	AcquireWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossarb_ratelimit_acquire_wait_seconds",
		Help:    "Time spent waiting for a rate-limit token",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
)
