package venue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/ratelimit"
	"crossarb/internal/testutil"
	"crossarb/internal/venue"
	"crossarb/pkg/cache"
	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

func testCache(t *testing.T) cache.Cache {
	t.Helper()

	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

// newTestGateway registers the fakes under driver name "fake" and brings the
// gateway up against them.
func newTestGateway(t *testing.T, drivers ...*testutil.FakeDriver) *venue.Gateway {
	t.Helper()

	registry := venue.NewRegistry()
	byName := make(map[string]*testutil.FakeDriver, len(drivers))
	venues := make([]config.VenueConfig, 0, len(drivers))
	for _, d := range drivers {
		byName[string(d.VenueID)] = d
		venues = append(venues, config.VenueConfig{
			Name:      string(d.VenueID),
			Driver:    "fake",
			RateLimit: 100,
			Timeout:   time.Second,
		})
	}
	registry.Register("fake", func(cfg config.VenueConfig, _ *zap.Logger) (venue.Driver, error) {
		d, ok := byName[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no fake for %s", cfg.Name)
		}
		return d, nil
	})

	limiter := ratelimit.New(ratelimit.Config{
		Capacity: 100,
		Window:   time.Second,
		Logger:   zap.NewNop(),
	})

	g, err := venue.New(venue.Config{
		Venues:            venues,
		Registry:          registry,
		Limiter:           limiter,
		Cache:             testCache(t),
		Logger:            zap.NewNop(),
		RecoverySleep:     10 * time.Millisecond,
		RecoveryWindow:    30 * time.Second,
		RecoveryTolerance: 1.0,
		DefaultTakerFee:   0.002,
		DefaultMakerFee:   0.001,
	})
	if err != nil {
		t.Fatalf("venue.New: %v", err)
	}

	err = g.Init(context.Background())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })

	return g
}

func marketBuy(v types.VenueID, cid string) *types.OrderRequest {
	return &types.OrderRequest{
		Venue:         v,
		Instrument:    "BTC/USD",
		Side:          types.SideBuy,
		Amount:        2,
		Type:          types.TypeMarket,
		ClientOrderID: cid,
	}
}

func TestExecuteTradeRequiresClientOrderID(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	g := newTestGateway(t, d)

	req := marketBuy("venue-a", "")
	_, err := g.ExecuteTrade(context.Background(), req)

	var invariant *types.InvariantError
	if !errors.As(err, &invariant) {
		t.Fatalf("missing clientOrderId accepted: %v", err)
	}
	if d.CallCount("createOrder") != 0 {
		t.Fatal("order reached the driver without a client order id")
	}
}

func TestExecuteTradeRetryDoesNotResubmit(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.SetBook("BTC/USD",
		[]types.BookLevel{{Price: 100, Amount: 10}},
		[]types.BookLevel{{Price: 99, Amount: 10}})
	g := newTestGateway(t, d)

	first, err := g.ExecuteTrade(context.Background(), marketBuy("venue-a", "cid-1"))
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if !first.Success {
		t.Fatalf("first order failed: %+v", first)
	}

	second, err := g.ExecuteTrade(context.Background(), marketBuy("venue-a", "cid-1"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	if d.CallCount("createOrder") != 1 {
		t.Fatalf("createOrder called %d times, want 1 (retry must hydrate)", d.CallCount("createOrder"))
	}
	if d.CallCount("fetchOrder") != 1 {
		t.Fatalf("fetchOrder called %d times, want 1", d.CallCount("fetchOrder"))
	}
	if second.OrderID != first.OrderID {
		t.Fatalf("retry returned different order: %s vs %s", second.OrderID, first.OrderID)
	}
}

func TestTimeoutRecoveryAdoptsMatchingOrder(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.CreateOrderFunc = func(_ context.Context, _ *types.OrderRequest) (*types.OrderResult, error) {
		return nil, fmt.Errorf("request timeout after 30s")
	}
	d.FetchRecentOrdersFunc = func(_ context.Context, _ types.Instrument, _ int) ([]*types.OrderResult, error) {
		return []*types.OrderResult{
			{
				Venue: "venue-a", OrderID: "venue-order-7",
				Instrument: "BTC/USD", Side: types.SideBuy,
				RequestedAmount: 2, FilledAmount: 2,
				AvgPrice: 100, Cost: 200, FeePaid: 0.2,
				VenueTimestamp: time.Now(), Success: true,
			},
			// Wrong side, must not be adopted.
			{
				Venue: "venue-a", OrderID: "venue-order-8",
				Instrument: "BTC/USD", Side: types.SideSell,
				RequestedAmount: 2, FilledAmount: 2,
				VenueTimestamp: time.Now(), Success: true,
			},
		}, nil
	}
	g := newTestGateway(t, d)

	result, err := g.ExecuteTrade(context.Background(), marketBuy("venue-a", "cid-t"))
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if !result.Success || result.OrderID != "venue-order-7" {
		t.Fatalf("matching order not adopted: %+v", result)
	}

	// The adopted order is now the idempotency record for this cid.
	d.FetchOrderFunc = func(_ context.Context, orderID string, _ types.Instrument) (*types.OrderResult, error) {
		if orderID != "venue-order-7" {
			t.Errorf("hydrating wrong order %s", orderID)
		}
		return result, nil
	}
	retry, err := g.ExecuteTrade(context.Background(), marketBuy("venue-a", "cid-t"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.OrderID != "venue-order-7" {
		t.Fatalf("retry resubmitted instead of hydrating: %+v", retry)
	}
}

func TestTimeoutRecoveryNoMatchFails(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.CreateOrderFunc = func(_ context.Context, _ *types.OrderRequest) (*types.OrderResult, error) {
		return nil, fmt.Errorf("deadline exceeded")
	}
	d.FetchRecentOrdersFunc = func(_ context.Context, _ types.Instrument, _ int) ([]*types.OrderResult, error) {
		// Amount off by 50%, outside the 1% tolerance.
		return []*types.OrderResult{
			{
				Venue: "venue-a", OrderID: "venue-order-9",
				Instrument: "BTC/USD", Side: types.SideBuy,
				RequestedAmount: 3, FilledAmount: 3,
				VenueTimestamp: time.Now(), Success: true,
			},
		}, nil
	}
	g := newTestGateway(t, d)

	result, err := g.ExecuteTrade(context.Background(), marketBuy("venue-a", "cid-n"))
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if result.Success {
		t.Fatalf("unmatched timeout reported as success: %+v", result)
	}
}

func TestThrottleOpensBackoffWindow(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.CreateOrderFunc = func(_ context.Context, _ *types.OrderRequest) (*types.OrderResult, error) {
		return nil, fmt.Errorf("429 too many requests")
	}
	g := newTestGateway(t, d)

	result, err := g.ExecuteTrade(context.Background(), marketBuy("venue-a", "cid-x"))
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if result.Success {
		t.Fatal("throttled order reported as success")
	}

	stats := g.Stats("venue-a")
	if !stats.Throttled {
		t.Fatal("throttle did not open a backoff window")
	}
	if stats.ThrottleErrors != 1 {
		t.Fatalf("throttle errors %d, want 1", stats.ThrottleErrors)
	}
}

func TestReservationsFenceFreeBalance(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.Balances["USD"] = types.Balance{Currency: "USD", Free: 1000}
	g := newTestGateway(t, d)

	free, err := g.FreeBalance(context.Background(), "venue-a", "USD")
	if err != nil {
		t.Fatalf("FreeBalance: %v", err)
	}
	if free != 1000 {
		t.Fatalf("free %f, want 1000", free)
	}

	err = g.Reserve("trade-1", "venue-a", "USD", 600)
	if err != nil {
		t.Fatalf("first reservation: %v", err)
	}

	err = g.Reserve("trade-2", "venue-a", "USD", 600)
	var race *types.BalanceRaceError
	if !errors.As(err, &race) {
		t.Fatalf("over-reservation accepted: %v", err)
	}

	available, err := g.AvailableBalanceExcluding(context.Background(), "venue-a", "USD", "trade-2")
	if err != nil {
		t.Fatalf("AvailableBalanceExcluding: %v", err)
	}
	if available != 400 {
		t.Fatalf("available %f, want 400 net of the live reservation", available)
	}

	g.Release("trade-1")
	err = g.Reserve("trade-2", "venue-a", "USD", 600)
	if err != nil {
		t.Fatalf("reservation after release: %v", err)
	}
}

func TestTakerFeeFallsBackToDefault(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.FeeSchedule["BTC/USD"] = types.TradingFees{Maker: 0.0002, Taker: 0.0007, Percentage: true}
	g := newTestGateway(t, d)

	g.RefreshAllFees(context.Background())
	if fee := g.TakerFee("venue-a", "BTC/USD"); fee != 0.0007 {
		t.Fatalf("taker fee %f, want venue schedule 0.0007", fee)
	}

	// Unknown venue falls back to the configured default.
	if fee := g.TakerFee("venue-z", "BTC/USD"); fee != 0.002 {
		t.Fatalf("default taker fee %f, want configured fallback 0.002", fee)
	}
}

func TestInitToleratesPartialVenueFailure(t *testing.T) {
	good := testutil.NewFakeDriver("venue-a", "BTC/USD")

	registry := venue.NewRegistry()
	registry.Register("fake", func(cfg config.VenueConfig, _ *zap.Logger) (venue.Driver, error) {
		if cfg.Name == "venue-b" {
			return nil, fmt.Errorf("credentials rejected")
		}
		return good, nil
	})

	g, err := venue.New(venue.Config{
		Venues: []config.VenueConfig{
			{Name: "venue-a", Driver: "fake", RateLimit: 100},
			{Name: "venue-b", Driver: "fake", RateLimit: 100},
		},
		Registry: registry,
		Limiter:  ratelimit.New(ratelimit.Config{Capacity: 100, Window: time.Second, Logger: zap.NewNop()}),
		Cache:    testCache(t),
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("venue.New: %v", err)
	}
	defer g.Close()

	err = g.Init(context.Background())
	if err != nil {
		t.Fatalf("Init with one bad venue: %v", err)
	}

	if got := g.Venues(); len(got) != 1 || got[0] != "venue-a" {
		t.Fatalf("venues %v, want only venue-a", got)
	}
	if _, bad := g.InitErrors()["venue-b"]; !bad {
		t.Fatal("venue-b failure not surfaced in init errors")
	}
}

func TestInitFailsWhenNoVenueComesUp(t *testing.T) {
	registry := venue.NewRegistry()
	registry.Register("fake", func(config.VenueConfig, *zap.Logger) (venue.Driver, error) {
		return nil, fmt.Errorf("refused")
	})

	g, err := venue.New(venue.Config{
		Venues:   []config.VenueConfig{{Name: "venue-a", Driver: "fake", RateLimit: 10}},
		Registry: registry,
		Limiter:  ratelimit.New(ratelimit.Config{Capacity: 10, Window: time.Second, Logger: zap.NewNop()}),
		Cache:    testCache(t),
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("venue.New: %v", err)
	}
	defer g.Close()

	err = g.Init(context.Background())
	if err == nil {
		t.Fatal("Init succeeded with zero venues up")
	}
}

func TestSubscribeFansOutUpdates(t *testing.T) {
	d := testutil.NewFakeDriver("venue-a", "BTC/USD")
	d.SetBook("BTC/USD",
		[]types.BookLevel{{Price: 100, Amount: 1}},
		[]types.BookLevel{{Price: 99, Amount: 1}})
	g := newTestGateway(t, d)

	err := g.Subscribe("BTC/USD", 20)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case snap := <-g.Updates():
		if snap.Venue != "venue-a" || snap.Instrument != "BTC/USD" {
			t.Fatalf("unexpected update: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no book update within 2s")
	}
}

func TestCancelAllOpenOrdersHitsEveryVenue(t *testing.T) {
	a := testutil.NewFakeDriver("venue-a", "BTC/USD")
	b := testutil.NewFakeDriver("venue-b", "BTC/USD")
	g := newTestGateway(t, a, b)

	err := g.CancelAllOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("CancelAllOpenOrders: %v", err)
	}
	if a.CallCount("cancelAllOpenOrders") != 1 || b.CallCount("cancelAllOpenOrders") != 1 {
		t.Fatal("cancel did not reach every venue")
	}
}
