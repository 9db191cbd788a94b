// Package sim provides an in-process venue driver with random-walk order
// books and synchronous fills. It backs local runs and tests where no real
// venue connectivity exists.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/venue"
	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

var acceptedDepths = []int{5, 20, 50, 100}

// Options seeds a simulated venue. Zero values get sensible defaults.
type Options struct {
	Instruments []types.Instrument
	// Mids sets the starting mid price per instrument (default 100).
	Mids map[types.Instrument]float64
	// Balances is the starting free balance per currency (default 1e6).
	Balances map[string]float64

	TakerFee float64 // fraction of notional, default 0.001
	MakerFee float64 // default 0.0008

	// Seed fixes the random walk; 0 means seeded from the clock.
	Seed          int64
	TickInterval  time.Duration // stream cadence, default 250ms
	StepPercent   float64       // max mid move per tick, default 0.05
	SpreadPercent float64       // half-spread around mid, default 0.02

	// FillRatio scales the filled amount on market orders (default 1.0,
	// set below 1 to exercise partial-fill handling).
	FillRatio float64
}

func (o *Options) defaults() {
	if len(o.Instruments) == 0 {
		o.Instruments = []types.Instrument{"BTC/USD"}
	}
	if o.TakerFee == 0 {
		o.TakerFee = 0.001
	}
	if o.MakerFee == 0 {
		o.MakerFee = 0.0008
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 250 * time.Millisecond
	}
	if o.StepPercent <= 0 {
		o.StepPercent = 0.05
	}
	if o.SpreadPercent <= 0 {
		o.SpreadPercent = 0.02
	}
	if o.FillRatio <= 0 || o.FillRatio > 1 {
		o.FillRatio = 1
	}
}

// NewFactory returns a venue.Factory building sim drivers with the given
// options. Each venue gets its own walk; the seed is offset by the venue
// name so two sim venues never move in lockstep.
func NewFactory(opts Options) venue.Factory {
	return func(cfg config.VenueConfig, logger *zap.Logger) (venue.Driver, error) {
		return newDriver(cfg, opts, logger)
	}
}

// Factory is the default-options factory registered under driver name "sim".
func Factory(cfg config.VenueConfig, logger *zap.Logger) (venue.Driver, error) {
	return newDriver(cfg, Options{}, logger)
}

type simOrder struct {
	result *types.OrderResult
}

// Driver is one simulated venue. All state lives behind a single mutex;
// fills are synchronous so there are never open orders to cancel.
type Driver struct {
	name   types.VenueID
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	mids     map[types.Instrument]float64
	balances map[string]float64
	byClient map[string]*simOrder
	byOrder  map[string]*simOrder
	recent   []*types.OrderResult
	seq      int
	closed   bool
}

func newDriver(cfg config.VenueConfig, opts Options, logger *zap.Logger) (*Driver, error) {
	if cfg.Name == "" {
		return nil, &types.ConfigError{Field: "name", Reason: "sim venue needs a name"}
	}
	opts.defaults()

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	for _, c := range cfg.Name {
		seed += int64(c)
	}

	mids := make(map[types.Instrument]float64, len(opts.Instruments))
	for _, instrument := range opts.Instruments {
		mid := opts.Mids[instrument]
		if mid <= 0 {
			mid = 100
		}
		mids[instrument] = mid
	}

	balances := make(map[string]float64)
	for currency, amount := range opts.Balances {
		balances[currency] = amount
	}
	for _, instrument := range opts.Instruments {
		for _, currency := range []string{instrument.Base(), instrument.Quote()} {
			if _, ok := balances[currency]; !ok && currency != "" {
				balances[currency] = 1e6
			}
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		name:     types.VenueID(cfg.Name),
		opts:     opts,
		logger:   logger.With(zap.String("venue", cfg.Name)),
		rng:      rand.New(rand.NewSource(seed)),
		mids:     mids,
		balances: balances,
		byClient: make(map[string]*simOrder),
		byOrder:  make(map[string]*simOrder),
	}, nil
}

func (d *Driver) Name() types.VenueID { return d.name }

func (d *Driver) Capabilities() venue.Capability {
	return venue.CapStreamOrderBook |
		venue.CapFetchBalance |
		venue.CapCreateOrder |
		venue.CapCancelOrder |
		venue.CapFetchTradingFees
}

func (d *Driver) AcceptedDepths() []int { return acceptedDepths }

func (d *Driver) LoadInstruments(_ context.Context) ([]types.Instrument, error) {
	out := make([]types.Instrument, len(d.opts.Instruments))
	copy(out, d.opts.Instruments)

	return out, nil
}

// step advances the random walk for one instrument and returns the new mid.
// Caller holds d.mu.
func (d *Driver) stepLocked(instrument types.Instrument) (float64, error) {
	mid, ok := d.mids[instrument]
	if !ok {
		return 0, &types.VenueError{
			Venue: d.name,
			Op:    "book",
			Err:   fmt.Errorf("unknown instrument %s", instrument),
		}
	}

	move := (d.rng.Float64()*2 - 1) * d.opts.StepPercent / 100
	mid *= 1 + move
	d.mids[instrument] = mid

	return mid, nil
}

// bookLocked builds a snapshot around the current mid. Level amounts shrink
// away from the touch so depth-walk slippage is observable.
func (d *Driver) bookLocked(instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error) {
	mid, err := d.stepLocked(instrument)
	if err != nil {
		return nil, err
	}

	half := mid * d.opts.SpreadPercent / 100
	tick := half / 2

	book := &types.OrderBookSnapshot{
		Venue:          d.name,
		Instrument:     instrument,
		Asks:           make([]types.BookLevel, 0, depth),
		Bids:           make([]types.BookLevel, 0, depth),
		VenueTimestamp: time.Now(),
	}
	for i := 0; i < depth; i++ {
		amount := 10.0 / float64(i+1) * (0.8 + d.rng.Float64()*0.4)
		book.Asks = append(book.Asks, types.BookLevel{
			Price:  mid + half + tick*float64(i),
			Amount: amount,
		})
		book.Bids = append(book.Bids, types.BookLevel{
			Price:  mid - half - tick*float64(i),
			Amount: amount,
		})
	}

	return book, nil
}

func (d *Driver) FetchOrderBook(_ context.Context, instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.bookLocked(instrument, depth)
}

func (d *Driver) StreamOrderBook(ctx context.Context, instrument types.Instrument, depth int) (<-chan *types.OrderBookSnapshot, error) {
	d.mu.Lock()
	_, ok := d.mids[instrument]
	d.mu.Unlock()
	if !ok {
		return nil, &types.VenueError{
			Venue: d.name,
			Op:    "stream",
			Err:   fmt.Errorf("unknown instrument %s", instrument),
		}
	}

	out := make(chan *types.OrderBookSnapshot)
	go func() {
		defer close(out)

		ticker := time.NewTicker(d.opts.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.mu.Lock()
				book, err := d.bookLocked(instrument, depth)
				d.mu.Unlock()
				if err != nil {
					return
				}
				select {
				case out <- book:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (d *Driver) FetchBalance(_ context.Context) (map[string]types.Balance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]types.Balance, len(d.balances))
	for currency, free := range d.balances {
		out[currency] = types.Balance{Currency: currency, Free: free}
	}

	return out, nil
}

func (d *Driver) FetchTradingFees(_ context.Context) (map[types.Instrument]types.TradingFees, error) {
	return map[types.Instrument]types.TradingFees{
		venue.FeeWildcard: {
			Maker:      d.opts.MakerFee,
			Taker:      d.opts.TakerFee,
			Percentage: true,
		},
	}, nil
}

// CreateOrder fills synchronously at the current touch. Resubmitting a
// clientOrderId returns the original result, the way a venue-native
// idempotency key behaves.
func (d *Driver) CreateOrder(_ context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	if req.ClientOrderID == "" {
		return nil, &types.VenueError{
			Venue: d.name,
			Op:    "create-order",
			Err:   fmt.Errorf("missing clientOrderId"),
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byClient[req.ClientOrderID]; ok {
		r := *existing.result
		return &r, nil
	}

	book, err := d.bookLocked(req.Instrument, 1)
	if err != nil {
		return nil, err
	}

	var price float64
	if req.Side == types.SideBuy {
		price = book.Asks[0].Price
	} else {
		price = book.Bids[0].Price
	}

	filled := req.Amount * d.opts.FillRatio
	cost := filled * price
	fee := cost * d.opts.TakerFee

	base := req.Instrument.Base()
	quote := req.Instrument.Quote()
	if req.Side == types.SideBuy {
		if d.balances[quote] < cost+fee {
			return d.recordLocked(req, &types.OrderResult{
				Venue: d.name, ClientOrderID: req.ClientOrderID,
				Instrument: req.Instrument, Side: req.Side,
				RequestedAmount: req.Amount,
				VenueTimestamp:  time.Now(),
				Success:         false,
				ErrorDetail:     fmt.Sprintf("insufficient %s balance", quote),
			}), nil
		}
		d.balances[quote] -= cost + fee
		d.balances[base] += filled
	} else {
		if d.balances[base] < filled {
			return d.recordLocked(req, &types.OrderResult{
				Venue: d.name, ClientOrderID: req.ClientOrderID,
				Instrument: req.Instrument, Side: req.Side,
				RequestedAmount: req.Amount,
				VenueTimestamp:  time.Now(),
				Success:         false,
				ErrorDetail:     fmt.Sprintf("insufficient %s balance", base),
			}), nil
		}
		d.balances[base] -= filled
		d.balances[quote] += cost - fee
	}

	d.seq++
	result := &types.OrderResult{
		Venue:           d.name,
		OrderID:         fmt.Sprintf("%s-%06d", d.name, d.seq),
		ClientOrderID:   req.ClientOrderID,
		Instrument:      req.Instrument,
		Side:            req.Side,
		RequestedAmount: req.Amount,
		FilledAmount:    filled,
		AvgPrice:        price,
		Cost:            cost,
		FeePaid:         fee,
		VenueTimestamp:  time.Now(),
		Success:         true,
	}

	return d.recordLocked(req, result), nil
}

// recordLocked stores the result under both ids and in the recent ring.
// Caller holds d.mu. Returns a copy.
func (d *Driver) recordLocked(req *types.OrderRequest, result *types.OrderResult) *types.OrderResult {
	order := &simOrder{result: result}
	d.byClient[req.ClientOrderID] = order
	if result.OrderID != "" {
		d.byOrder[result.OrderID] = order
	}

	d.recent = append(d.recent, result)
	if len(d.recent) > 200 {
		d.recent = d.recent[len(d.recent)-200:]
	}

	r := *result

	return &r
}

func (d *Driver) FetchOrder(_ context.Context, orderID string, _ types.Instrument) (*types.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.byOrder[orderID]
	if !ok {
		if order, ok = d.byClient[orderID]; !ok {
			return nil, &types.VenueError{
				Venue: d.name,
				Op:    "fetch-order",
				Err:   fmt.Errorf("unknown order %s", orderID),
			}
		}
	}

	r := *order.result

	return &r, nil
}

func (d *Driver) FetchRecentOrders(_ context.Context, instrument types.Instrument, limit int) ([]*types.OrderResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}

	out := make([]*types.OrderResult, 0, limit)
	for i := len(d.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if d.recent[i].Instrument != instrument {
			continue
		}
		r := *d.recent[i]
		out = append(out, &r)
	}

	return out, nil
}

// CancelOrder and CancelAllOpenOrders are trivially successful: market
// orders fill synchronously, so nothing is ever open.
func (d *Driver) CancelOrder(_ context.Context, _ string, _ types.Instrument) error {
	return nil
}

func (d *Driver) CancelAllOpenOrders(_ context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true

	return nil
}
