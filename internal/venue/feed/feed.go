// Package feed implements the venue driver for venues speaking the feed
// protocol: a JSON REST API for orders, balances and fees, and a websocket
// channel for streaming order books. Requests are signed with
// HMAC-SHA256 over timestamp+method+path+body.
package feed

import (
	"context"

	"go.uber.org/zap"

	"crossarb/internal/venue"
	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

var acceptedDepths = []int{1, 5, 10, 20, 50}

// Driver is one feed-protocol venue.
type Driver struct {
	name   types.VenueID
	wsURL  string
	rest   *restClient
	logger *zap.Logger
}

// Factory builds a feed driver from the venue config; registered under
// driver name "feed".
func Factory(cfg config.VenueConfig, logger *zap.Logger) (venue.Driver, error) {
	if cfg.Name == "" {
		return nil, &types.ConfigError{Field: "name", Reason: "feed venue needs a name"}
	}
	if cfg.RESTURL == "" {
		return nil, &types.ConfigError{
			Field:  cfg.Name + "_REST_URL",
			Reason: "feed venue needs a REST endpoint",
		}
	}
	if cfg.WSURL == "" {
		return nil, &types.ConfigError{
			Field:  cfg.Name + "_WS_URL",
			Reason: "feed venue needs a websocket endpoint",
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	name := types.VenueID(cfg.Name)
	s := newSigner(cfg.APIKey, cfg.APISecret, cfg.APIPassword)

	return &Driver{
		name:   name,
		wsURL:  cfg.WSURL,
		rest:   newRESTClient(name, cfg.RESTURL, cfg.Timeout, s),
		logger: logger.With(zap.String("venue", cfg.Name)),
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

func (d *Driver) LoadInstruments(ctx context.Context) ([]types.Instrument, error) {
	return d.rest.instruments(ctx)
}

func (d *Driver) FetchOrderBook(ctx context.Context, instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error) {
	return d.rest.orderBook(ctx, instrument, depth)
}

func (d *Driver) StreamOrderBook(ctx context.Context, instrument types.Instrument, depth int) (<-chan *types.OrderBookSnapshot, error) {
	return d.openStream(ctx, instrument, depth)
}

func (d *Driver) FetchBalance(ctx context.Context) (map[string]types.Balance, error) {
	return d.rest.balances(ctx)
}

func (d *Driver) FetchTradingFees(ctx context.Context) (map[types.Instrument]types.TradingFees, error) {
	return d.rest.tradingFees(ctx)
}

func (d *Driver) CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	return d.rest.createOrder(ctx, req)
}

func (d *Driver) FetchOrder(ctx context.Context, orderID string, instrument types.Instrument) (*types.OrderResult, error) {
	return d.rest.fetchOrder(ctx, orderID, instrument)
}

func (d *Driver) FetchRecentOrders(ctx context.Context, instrument types.Instrument, limit int) ([]*types.OrderResult, error) {
	return d.rest.recentOrders(ctx, instrument, limit)
}

func (d *Driver) CancelOrder(ctx context.Context, orderID string, instrument types.Instrument) error {
	return d.rest.cancelOrder(ctx, orderID, instrument)
}

func (d *Driver) CancelAllOpenOrders(ctx context.Context) error {
	return d.rest.cancelAll(ctx)
}

func (d *Driver) Close() error { return nil }
