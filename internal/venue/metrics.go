package venue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersSubmittedTotal tracks order submissions by venue, side and outcome.
	OrdersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_orders_submitted_total",
			Help: "Total number of orders submitted to venues",
		},
		[]string{"venue", "side", "outcome"},
	)

	// IdempotencyHitsTotal counts order submissions short-circuited by the
	// recent-order cache.
	IdempotencyHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_venue_idempotency_hits_total",
		Help: "Order submissions deduplicated by client order id",
	})

	// TimeoutRecoveriesTotal tracks recovery scans after order timeouts.
	TimeoutRecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_timeout_recoveries_total",
			Help: "Recovery scans after order submission timeouts",
		},
		[]string{"outcome"},
	)

	// BookUpdatesTotal tracks order-book snapshots received per venue.
	BookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_book_updates_total",
			Help: "Total number of order-book snapshots received",
		},
		[]string{"venue"},
	)

	// BookUpdatesDropped counts snapshots dropped on a full updates channel.
	BookUpdatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_venue_book_updates_dropped_total",
		Help: "Order-book snapshots dropped because the consumer lagged",
	})

	// StaleBooksTotal counts snapshots tagged stale on arrival.
	StaleBooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_stale_books_total",
			Help: "Order-book snapshots older than the staleness threshold",
		},
		[]string{"venue"},
	)

	// StreamErrorsTotal tracks stream failures per venue.
	StreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_stream_errors_total",
			Help: "Total number of order-book stream failures",
		},
		[]string{"venue"},
	)

	// ReconnectsTotal tracks full reconnect cycles per venue.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_reconnects_total",
			Help: "Total number of venue reconnect cycles",
		},
		[]string{"venue"},
	)

	// VenueUp reports per-venue connection state (1 connected, 0 otherwise).
	VenueUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossarb_venue_up",
			Help: "Venue connection state",
		},
		[]string{"venue"},
	)

	// ReservationsActive reports the number of live balance reservations.
	ReservationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_venue_reservations_active",
		Help: "Number of live balance reservations",
	})

	// BalanceFree reports the last observed free balance per venue and currency.
	BalanceFree = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossarb_venue_balance_free",
			Help: "Last observed free balance",
		},
		[]string{"venue", "currency"},
	)

	// FeeRefreshesTotal tracks trading-fee refreshes per venue and outcome.
	FeeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_venue_fee_refreshes_total",
			Help: "Trading-fee schedule refreshes",
		},
		[]string{"venue", "outcome"},
	)
)
