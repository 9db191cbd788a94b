package books

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal counts snapshots applied to the latest-book store.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_books_updates_total",
			Help: "Order-book snapshots applied to the latest-book store",
		},
		[]string{"venue"},
	)

	// UpdatesDropped counts fanout sends dropped because consumers lagged.
	UpdatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_books_updates_dropped_total",
		Help: "Fanout updates dropped because the consumer channel was full",
	})

	// SnapshotsTracked reports distinct (venue, instrument) books held.
	SnapshotsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_books_snapshots_tracked",
		Help: "Number of (venue, instrument) books currently tracked",
	})
)
