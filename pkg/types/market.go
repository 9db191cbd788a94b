package types

import (
	"strings"
	"time"
)

// VenueID identifies a trading venue ("kraken", "sim-a", ...).
type VenueID string

// Instrument is a tradable pair in "BASE/QUOTE" form, e.g. "BTC/USDT".
type Instrument string

// Base returns the base currency of the pair ("" if malformed).
func (i Instrument) Base() string {
	base, _, ok := strings.Cut(string(i), "/")
	if !ok {
		return ""
	}

	return base
}

// Quote returns the quote currency of the pair ("" if malformed).
func (i Instrument) Quote() string {
	_, quote, ok := strings.Cut(string(i), "/")
	if !ok {
		return ""
	}

	return quote
}

// Valid reports whether the instrument has both a base and a quote part.
func (i Instrument) Valid() bool {
	base, quote, ok := strings.Cut(string(i), "/")

	return ok && base != "" && quote != ""
}

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBookSnapshot is one venue's view of an instrument at a point in time.
// Asks are ascending by price, bids descending. VenueTimestamp is the venue's
// own clock and is authoritative for age reasoning; ReceivedAt is the local
// receive time, recorded for skew monitoring only.
type OrderBookSnapshot struct {
	Venue          VenueID     `json:"venue"`
	Instrument     Instrument  `json:"instrument"`
	Asks           []BookLevel `json:"asks"`
	Bids           []BookLevel `json:"bids"`
	VenueTimestamp time.Time   `json:"venueTimestamp"`
	ReceivedAt     time.Time   `json:"receivedAt"`
	Stale          bool        `json:"stale,omitempty"`
}

// BestAsk returns the lowest ask level, if any.
func (s *OrderBookSnapshot) BestAsk() (BookLevel, bool) {
	if len(s.Asks) == 0 {
		return BookLevel{}, false
	}

	return s.Asks[0], true
}

// BestBid returns the highest bid level, if any.
func (s *OrderBookSnapshot) BestBid() (BookLevel, bool) {
	if len(s.Bids) == 0 {
		return BookLevel{}, false
	}

	return s.Bids[0], true
}

// Age is the snapshot age relative to now, measured against the venue clock.
func (s *OrderBookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.VenueTimestamp)
}

// Copy returns a deep copy so callers can hold snapshots across updates.
func (s *OrderBookSnapshot) Copy() *OrderBookSnapshot {
	cp := *s
	cp.Asks = make([]BookLevel, len(s.Asks))
	copy(cp.Asks, s.Asks)
	cp.Bids = make([]BookLevel, len(s.Bids))
	copy(cp.Bids, s.Bids)

	return &cp
}

// TradingFees holds a venue's fee rates. Percentage=true means the rates are
// fractions of notional (0.001 = 0.1%); false means flat per-unit quote fees.
type TradingFees struct {
	Maker      float64 `json:"maker"`
	Taker      float64 `json:"taker"`
	Percentage bool    `json:"percentage"`
}

// Balance is the free/locked split of one currency at one venue.
type Balance struct {
	Currency string  `json:"currency"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
}

// BalanceReservation earmarks funds for an in-flight trade so concurrent
// trades cannot double-spend the same free balance.
type BalanceReservation struct {
	TradeKey  string    `json:"tradeKey"`
	Venue     VenueID   `json:"venue"`
	Currency  string    `json:"currency"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
