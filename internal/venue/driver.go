package venue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

// Capability is a bitmap of optional driver features. Unsupported calls are
// a capability miss, not a runtime type error.
type Capability uint16

const (
	CapStreamOrderBook Capability = 1 << iota
	CapStreamTicker
	CapStreamBalance
	CapFetchBalance
	CapCreateOrder
	CapCancelOrder
	CapFetchTradingFees
)

// Has reports whether all bits of want are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// FeeWildcard keys a venue-wide fee schedule; per-instrument entries
// override it.
const FeeWildcard = types.Instrument("*")

// Driver is the opaque adapter for one venue's protocol. Errors it returns
// are opaque; only the textual timeout/throttle markers are interpreted,
// and only by the gateway's classifier.
type Driver interface {
	Name() types.VenueID
	Capabilities() Capability

	// AcceptedDepths is the ascending set of order-book depths the venue
	// accepts; requests are normalized to the smallest accepted value.
	AcceptedDepths() []int

	LoadInstruments(ctx context.Context) ([]types.Instrument, error)
	FetchOrderBook(ctx context.Context, instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error)

	// StreamOrderBook returns a channel of snapshots that closes when the
	// stream drops; the handle restarts it.
	StreamOrderBook(ctx context.Context, instrument types.Instrument, depth int) (<-chan *types.OrderBookSnapshot, error)

	FetchBalance(ctx context.Context) (map[string]types.Balance, error)
	FetchTradingFees(ctx context.Context) (map[types.Instrument]types.TradingFees, error)

	// CreateOrder submits exactly one order. The request's ClientOrderID is
	// passed through as the venue's native idempotency key.
	CreateOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error)

	FetchOrder(ctx context.Context, orderID string, instrument types.Instrument) (*types.OrderResult, error)
	FetchRecentOrders(ctx context.Context, instrument types.Instrument, limit int) ([]*types.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string, instrument types.Instrument) error
	CancelAllOpenOrders(ctx context.Context) error
	Close() error
}

// Factory builds a driver from its venue configuration.
type Factory func(cfg config.VenueConfig, logger *zap.Logger) (Driver, error)

// Registry maps driver names ("sim", "feed") to factories. Venue configs
// pick their driver by name at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty driver registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a driver name. Re-registering replaces.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
}

// New builds a driver for the venue config, or a ConfigError for unknown
// driver names.
func (r *Registry) New(cfg config.VenueConfig, logger *zap.Logger) (Driver, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Driver]
	r.mu.RUnlock()

	if !ok {
		return nil, &types.ConfigError{
			Field:  cfg.Name,
			Reason: fmt.Sprintf("unknown venue driver %q (registered: %v)", cfg.Driver, r.Names()),
		}
	}

	return factory(cfg, logger)
}

// Names lists the registered driver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
