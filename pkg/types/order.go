package types

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
)

// OrderRequest describes one order to be submitted to a venue.
// ClientOrderID is the caller-minted idempotency key and is mandatory:
// retries carrying the same key must not create a second venue order.
type OrderRequest struct {
	Venue         VenueID    `json:"venue"`
	Instrument    Instrument `json:"instrument"`
	Side          OrderSide  `json:"side"`
	Amount        float64    `json:"amount"`
	Type          OrderType  `json:"type"`
	Price         float64    `json:"price,omitempty"` // limit orders only
	ClientOrderID string     `json:"clientOrderId"`
}

// OrderResult is the venue's report of a submitted order.
type OrderResult struct {
	Venue           VenueID    `json:"venue"`
	OrderID         string     `json:"orderId"`
	ClientOrderID   string     `json:"clientOrderId"`
	Instrument      Instrument `json:"instrument"`
	Side            OrderSide  `json:"side"`
	RequestedAmount float64    `json:"requestedAmount"`
	FilledAmount    float64    `json:"filledAmount"`
	AvgPrice        float64    `json:"avgPrice"`
	Cost            float64    `json:"cost"`    // filled amount x average price, in quote
	FeePaid         float64    `json:"feePaid"` // in quote
	VenueTimestamp  time.Time  `json:"venueTimestamp"`
	Success         bool       `json:"success"`
	ErrorDetail     string     `json:"errorDetail,omitempty"`
}

// FillPercent is the filled fraction of the requested amount, in percent.
func (r *OrderResult) FillPercent() float64 {
	if r.RequestedAmount <= 0 {
		return 0
	}

	return r.FilledAmount / r.RequestedAmount * 100
}

// TradeStatus is the lifecycle state of an in-flight arbitrage trade.
type TradeStatus string

const (
	TradePending     TradeStatus = "pending"
	TradeBuyExecuted TradeStatus = "buyExecuted"
	TradeCompleted   TradeStatus = "completed"
	TradeFailed      TradeStatus = "failed"
)

// Terminal reports whether the status ends the trade's active lifecycle.
func (s TradeStatus) Terminal() bool {
	return s == TradeCompleted || s == TradeFailed
}
