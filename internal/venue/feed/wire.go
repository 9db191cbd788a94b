package feed

// Wire types for the feed protocol. Book levels travel as [price, amount]
// pairs; timestamps are epoch milliseconds.

type instrumentsResponse struct {
	Instruments []string `json:"instruments"`
}

type bookResponse struct {
	Instrument string       `json:"instrument"`
	Asks       [][2]float64 `json:"asks"`
	Bids       [][2]float64 `json:"bids"`
	Timestamp  int64        `json:"timestamp"`
}

type balanceEntry struct {
	Currency string  `json:"currency"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
}

type balancesResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type feeEntry struct {
	Instrument string  `json:"instrument"` // "*" for the venue-wide default
	Maker      float64 `json:"maker"`
	Taker      float64 `json:"taker"`
}

type feesResponse struct {
	Fees []feeEntry `json:"fees"`
}

type orderRequest struct {
	ClientOrderID string  `json:"clientOrderId"`
	Instrument    string  `json:"instrument"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Price         float64 `json:"price,omitempty"`
}

type orderResponse struct {
	OrderID       string  `json:"orderId"`
	ClientOrderID string  `json:"clientOrderId"`
	Instrument    string  `json:"instrument"`
	Side          string  `json:"side"`
	Status        string  `json:"status"` // "filled", "partial", "rejected"
	Amount        float64 `json:"amount"`
	Filled        float64 `json:"filled"`
	AvgPrice      float64 `json:"avgPrice"`
	Fee           float64 `json:"fee"`
	Timestamp     int64   `json:"timestamp"`
	Reason        string  `json:"reason,omitempty"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// subscribeMessage is sent once per stream after the dial.
type subscribeMessage struct {
	Op         string `json:"op"` // "subscribe"
	Channel    string `json:"channel"`
	Instrument string `json:"instrument"`
	Depth      int    `json:"depth"`
}

// bookMessage is one streamed order-book snapshot.
type bookMessage struct {
	Channel    string       `json:"channel"`
	Instrument string       `json:"instrument"`
	Asks       [][2]float64 `json:"asks"`
	Bids       [][2]float64 `json:"bids"`
	Timestamp  int64        `json:"timestamp"`
}
