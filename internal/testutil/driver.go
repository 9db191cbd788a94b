package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crossarb/internal/venue"
	"crossarb/pkg/types"
)

// FakeDriver is a scriptable venue.Driver for tests. Every call is recorded;
// behavior is overridden per method with the *Func fields, and common cases
// (static books, balances, fee schedules, synthetic fills) work with no
// scripting at all.
type FakeDriver struct {
	VenueID types.VenueID
	Caps    venue.Capability
	Depths  []int

	mu          sync.Mutex
	Instruments []types.Instrument
	Books       map[types.Instrument]*types.OrderBookSnapshot
	Balances    map[string]types.Balance
	FeeSchedule map[types.Instrument]types.TradingFees
	Orders      []*types.OrderResult
	Created     []*types.OrderRequest
	Cancelled   []string
	Calls       map[string]int

	CreateOrderFunc       func(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error)
	FetchOrderFunc        func(ctx context.Context, orderID string, instrument types.Instrument) (*types.OrderResult, error)
	FetchRecentOrdersFunc func(ctx context.Context, instrument types.Instrument, limit int) ([]*types.OrderResult, error)
	FetchBalanceFunc      func(ctx context.Context) (map[string]types.Balance, error)
	StreamFunc            func(ctx context.Context, instrument types.Instrument, depth int) (<-chan *types.OrderBookSnapshot, error)
}

// NewFakeDriver creates a fake venue with the full capability set and a
// common depth table.
func NewFakeDriver(id types.VenueID, instruments ...types.Instrument) *FakeDriver {
	return &FakeDriver{
		VenueID: id,
		Caps: venue.CapStreamOrderBook | venue.CapFetchBalance | venue.CapCreateOrder |
			venue.CapCancelOrder | venue.CapFetchTradingFees,
		Depths:      []int{5, 20, 50, 100},
		Instruments: instruments,
		Books:       make(map[types.Instrument]*types.OrderBookSnapshot),
		Balances:    make(map[string]types.Balance),
		FeeSchedule: make(map[types.Instrument]types.TradingFees),
		Calls:       make(map[string]int),
	}
}

func (d *FakeDriver) record(method string) {
	d.mu.Lock()
	d.Calls[method]++
	d.mu.Unlock()
}

// CallCount returns how often a driver method was invoked.
func (d *FakeDriver) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.Calls[method]
}

func (d *FakeDriver) Name() types.VenueID            { return d.VenueID }
func (d *FakeDriver) Capabilities() venue.Capability { return d.Caps }
func (d *FakeDriver) AcceptedDepths() []int          { return d.Depths }

func (d *FakeDriver) LoadInstruments(_ context.Context) ([]types.Instrument, error) {
	d.record("loadInstruments")
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.Instrument, len(d.Instruments))
	copy(out, d.Instruments)

	return out, nil
}

// SetBook installs a static book snapshot served by fetch and stream.
func (d *FakeDriver) SetBook(instrument types.Instrument, asks, bids []types.BookLevel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Books[instrument] = &types.OrderBookSnapshot{
		Venue:          d.VenueID,
		Instrument:     instrument,
		Asks:           asks,
		Bids:           bids,
		VenueTimestamp: time.Now(),
		ReceivedAt:     time.Now(),
	}
}

func (d *FakeDriver) FetchOrderBook(_ context.Context, instrument types.Instrument, _ int) (*types.OrderBookSnapshot, error) {
	d.record("fetchOrderBook")
	d.mu.Lock()
	defer d.mu.Unlock()

	book, ok := d.Books[instrument]
	if !ok {
		return nil, fmt.Errorf("no book for %s", instrument)
	}

	cp := book.Copy()
	cp.VenueTimestamp = time.Now()

	return cp, nil
}

func (d *FakeDriver) StreamOrderBook(ctx context.Context, instrument types.Instrument, depth int) (<-chan *types.OrderBookSnapshot, error) {
	d.record("streamOrderBook")
	if d.StreamFunc != nil {
		return d.StreamFunc(ctx, instrument, depth)
	}

	ch := make(chan *types.OrderBookSnapshot, 1)
	d.mu.Lock()
	if book, ok := d.Books[instrument]; ok {
		cp := book.Copy()
		cp.VenueTimestamp = time.Now()
		ch <- cp
	}
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(ch)
	}()

	return ch, nil
}

func (d *FakeDriver) FetchBalance(ctx context.Context) (map[string]types.Balance, error) {
	d.record("fetchBalance")
	if d.FetchBalanceFunc != nil {
		return d.FetchBalanceFunc(ctx)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]types.Balance, len(d.Balances))
	for cur, bal := range d.Balances {
		out[cur] = bal
	}

	return out, nil
}

func (d *FakeDriver) FetchTradingFees(_ context.Context) (map[types.Instrument]types.TradingFees, error) {
	d.record("fetchTradingFees")
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[types.Instrument]types.TradingFees, len(d.FeeSchedule))
	for instrument, fees := range d.FeeSchedule {
		out[instrument] = fees
	}

	return out, nil
}

// CreateOrder fills the request synchronously against the stored book at its
// best level, unless CreateOrderFunc is scripted.
func (d *FakeDriver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	d.record("createOrder")
	d.mu.Lock()
	cp := *req
	d.Created = append(d.Created, &cp)
	d.mu.Unlock()

	if d.CreateOrderFunc != nil {
		return d.CreateOrderFunc(ctx, req)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	book, ok := d.Books[req.Instrument]
	if !ok {
		return nil, fmt.Errorf("no book for %s", req.Instrument)
	}

	var price float64
	if req.Side == types.SideBuy {
		price = book.Asks[0].Price
	} else {
		price = book.Bids[0].Price
	}

	fee := d.FeeSchedule[req.Instrument].Taker
	result := &types.OrderResult{
		Venue:           d.VenueID,
		OrderID:         fmt.Sprintf("%s-order-%d", d.VenueID, len(d.Orders)+1),
		ClientOrderID:   req.ClientOrderID,
		Instrument:      req.Instrument,
		Side:            req.Side,
		RequestedAmount: req.Amount,
		FilledAmount:    req.Amount,
		AvgPrice:        price,
		Cost:            price * req.Amount,
		FeePaid:         price * req.Amount * fee,
		VenueTimestamp:  time.Now(),
		Success:         true,
	}
	d.Orders = append(d.Orders, result)

	return result, nil
}

func (d *FakeDriver) FetchOrder(ctx context.Context, orderID string, instrument types.Instrument) (*types.OrderResult, error) {
	d.record("fetchOrder")
	if d.FetchOrderFunc != nil {
		return d.FetchOrderFunc(ctx, orderID, instrument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, order := range d.Orders {
		if order.OrderID == orderID {
			cp := *order
			return &cp, nil
		}
	}

	return nil, fmt.Errorf("order %s not found", orderID)
}

func (d *FakeDriver) FetchRecentOrders(ctx context.Context, instrument types.Instrument, limit int) ([]*types.OrderResult, error) {
	d.record("fetchRecentOrders")
	if d.FetchRecentOrdersFunc != nil {
		return d.FetchRecentOrdersFunc(ctx, instrument, limit)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*types.OrderResult, 0, limit)
	for i := len(d.Orders) - 1; i >= 0 && len(out) < limit; i-- {
		if d.Orders[i].Instrument == instrument {
			cp := *d.Orders[i]
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (d *FakeDriver) CancelOrder(_ context.Context, orderID string, _ types.Instrument) error {
	d.record("cancelOrder")
	d.mu.Lock()
	d.Cancelled = append(d.Cancelled, orderID)
	d.mu.Unlock()

	return nil
}

func (d *FakeDriver) CancelAllOpenOrders(_ context.Context) error {
	d.record("cancelAllOpenOrders")

	return nil
}

func (d *FakeDriver) Close() error {
	d.record("close")

	return nil
}
