package venue

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crossarb/internal/ratelimit"
	"crossarb/pkg/cache"
	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

// Config holds venue gateway configuration.
type Config struct {
	Venues   []config.VenueConfig
	Registry *Registry
	Limiter  *ratelimit.Limiter
	Cache    cache.Cache
	Logger   *zap.Logger

	// Streaming
	StalenessThreshold    time.Duration
	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	StreamRestartDelay    time.Duration
	UpdateBufferSize      int

	// Fees
	FeeCacheTTL     time.Duration
	DefaultMakerFee float64
	DefaultTakerFee float64

	// Timeout recovery on order submission
	RecoveryWindow    time.Duration
	RecoverySleep     time.Duration
	RecoveryTolerance float64 // percent of requested amount

	// Reservations and idempotency records
	ReservationMaxAge time.Duration
	RecentOrderTTL    time.Duration

	// Error-text classification; defaults used when nil.
	Classifier *Classifier
}

// Gateway owns one handle per configured venue and serializes every outbound
// request through the rate limiter. It is the only component that talks to
// drivers: market data fans in through Updates, orders go out through
// ExecuteTrade with at-most-once semantics.
type Gateway struct {
	cfg        Config
	logger     *zap.Logger
	limiter    *ratelimit.Limiter
	classifier *Classifier

	fees         *FeeCache
	reservations *reservationBook
	recent       *recentOrders

	updates chan *types.OrderBookSnapshot
	events  chan types.VenueEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	handles     map[types.VenueID]*Handle
	drivers     map[types.VenueID]Driver
	instruments map[types.VenueID]map[types.Instrument]bool
	initErrors  map[string]error
}

// New creates a gateway. Venues are not contacted until Init.
func New(cfg Config) (*Gateway, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("driver registry is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.UpdateBufferSize <= 0 {
		cfg.UpdateBufferSize = 1024
	}
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = 30 * time.Second
	}
	if cfg.RecoverySleep <= 0 {
		cfg.RecoverySleep = 2 * time.Second
	}
	if cfg.RecoveryTolerance <= 0 {
		cfg.RecoveryTolerance = 1.0
	}
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultClassifier()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Gateway{
		cfg:          cfg,
		logger:       cfg.Logger,
		limiter:      cfg.Limiter,
		classifier:   cfg.Classifier,
		fees:         NewFeeCache(cfg.Cache, cfg.FeeCacheTTL, cfg.DefaultMakerFee, cfg.DefaultTakerFee, cfg.Logger),
		reservations: newReservationBook(cfg.ReservationMaxAge),
		recent:       newRecentOrders(cfg.Cache, cfg.RecentOrderTTL),
		updates:      make(chan *types.OrderBookSnapshot, cfg.UpdateBufferSize),
		events:       make(chan types.VenueEvent, 64),
		ctx:          ctx,
		cancel:       cancel,
		handles:      make(map[types.VenueID]*Handle),
		drivers:      make(map[types.VenueID]Driver),
		instruments:  make(map[types.VenueID]map[types.Instrument]bool),
		initErrors:   make(map[string]error),
	}, nil
}

// Init builds a driver and handle for every configured venue concurrently.
// A venue that fails to initialize is recorded and skipped; Init fails only
// when no venue comes up at all.
func (g *Gateway) Init(ctx context.Context) error {
	var eg errgroup.Group

	for _, vcfg := range g.cfg.Venues {
		vcfg := vcfg
		eg.Go(func() error {
			err := g.initVenue(ctx, vcfg)
			if err != nil {
				g.mu.Lock()
				g.initErrors[vcfg.Name] = err
				g.mu.Unlock()
				g.logger.Error("venue-init-failed",
					zap.String("venue", vcfg.Name),
					zap.Error(err))
			}
			// Partial failure is tolerated; surface it via InitErrors.
			return nil
		})
	}

	_ = eg.Wait()

	g.mu.RLock()
	up := len(g.handles)
	g.mu.RUnlock()

	if up == 0 && len(g.cfg.Venues) > 0 {
		return fmt.Errorf("no venue initialized (%d configured, all failed)", len(g.cfg.Venues))
	}

	g.logger.Info("gateway-initialized",
		zap.Int("venues-up", up),
		zap.Int("venues-configured", len(g.cfg.Venues)))

	return nil
}

func (g *Gateway) initVenue(ctx context.Context, vcfg config.VenueConfig) error {
	driver, err := g.cfg.Registry.New(vcfg, g.logger)
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	venue := driver.Name()
	if vcfg.RateLimit > 0 {
		g.limiter.SetCapacity(venue, vcfg.RateLimit)
	}

	err = g.limiter.Acquire(ctx, venue)
	if err != nil {
		return err
	}

	instruments, err := driver.LoadInstruments(ctx)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("load instruments: %w", err)
	}

	listed := make(map[types.Instrument]bool, len(instruments))
	for _, instrument := range instruments {
		listed[instrument] = true
	}

	handle := newHandle(driver, HandleConfig{
		StalenessThreshold:    g.cfg.StalenessThreshold,
		MaxReconnectAttempts:  g.cfg.MaxReconnectAttempts,
		ReconnectInitialDelay: g.cfg.ReconnectInitialDelay,
		ReconnectMaxDelay:     g.cfg.ReconnectMaxDelay,
		StreamRestartDelay:    g.cfg.StreamRestartDelay,
		Logger:                g.logger,
	}, g.updates, g.events)

	g.mu.Lock()
	g.handles[venue] = handle
	g.drivers[venue] = driver
	g.instruments[venue] = listed
	g.mu.Unlock()

	g.logger.Info("venue-initialized",
		zap.String("venue", string(venue)),
		zap.Int("instruments", len(instruments)))

	return nil
}

// InitErrors returns per-venue initialization failures by configured name.
func (g *Gateway) InitErrors() map[string]error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]error, len(g.initErrors))
	for name, err := range g.initErrors {
		out[name] = err
	}

	return out
}

// Venues lists the initialized venues, sorted.
func (g *Gateway) Venues() []types.VenueID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]types.VenueID, 0, len(g.handles))
	for venue := range g.handles {
		out = append(out, venue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

// HasInstrument reports whether the venue lists the instrument.
func (g *Gateway) HasInstrument(venue types.VenueID, instrument types.Instrument) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.instruments[venue][instrument]
}

// Subscribe starts order-book streams for the instrument on every venue that
// lists it.
func (g *Gateway) Subscribe(instrument types.Instrument, depth int) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	subscribed := 0
	for venue, handle := range g.handles {
		if !g.instruments[venue][instrument] {
			continue
		}

		err := handle.Subscribe(instrument, depth)
		if err != nil {
			g.logger.Warn("subscribe-failed",
				zap.String("venue", string(venue)),
				zap.String("instrument", string(instrument)),
				zap.Error(err))
			continue
		}
		subscribed++
	}

	if subscribed == 0 {
		return fmt.Errorf("instrument %s listed on no initialized venue", instrument)
	}

	return nil
}

// Updates is the shared order-book snapshot fanout.
func (g *Gateway) Updates() <-chan *types.OrderBookSnapshot {
	return g.updates
}

// Events is the venue lifecycle/error event stream.
func (g *Gateway) Events() <-chan types.VenueEvent {
	return g.events
}

// FetchOrderBook fetches a fresh book over the request path, rate limited,
// with depth normalized to the venue's accepted table.
func (g *Gateway) FetchOrderBook(ctx context.Context, venue types.VenueID, instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error) {
	driver, err := g.driver(venue)
	if err != nil {
		return nil, err
	}

	normalized, capped := CompatibleDepth(driver.AcceptedDepths(), depth)
	if capped {
		g.logger.Warn("depth-capped-to-venue-maximum",
			zap.String("venue", string(venue)),
			zap.Int("requested", depth),
			zap.Int("capped", normalized))
	}

	err = g.limiter.Acquire(ctx, venue)
	if err != nil {
		return nil, err
	}

	snap, err := driver.FetchOrderBook(ctx, instrument, normalized)
	if err != nil {
		g.noteRequestError(venue, err)
		return nil, &types.VenueError{Venue: venue, Op: "fetchOrderBook", Err: err}
	}
	g.limiter.OnSuccess(venue)

	return snap, nil
}

// ExecuteTrade submits exactly one order. The underlying create call is
// attempted once; retries are the caller's business and are deduplicated by
// ClientOrderID. Failures come back as a result with Success=false — an error
// return means the request never reached the submission path.
func (g *Gateway) ExecuteTrade(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	if req.ClientOrderID == "" {
		return nil, &types.InvariantError{Msg: "order submitted without client order id"}
	}

	driver, err := g.driver(req.Venue)
	if err != nil {
		return nil, err
	}

	// Retry short-circuit: a known client order id means the venue already
	// has (or had) this order. Hydrate it instead of resubmitting.
	if entry, ok := g.recent.Lookup(req.ClientOrderID); ok {
		IdempotencyHitsTotal.Inc()
		g.logger.Debug("idempotency-hit",
			zap.String("client-order-id", req.ClientOrderID),
			zap.String("order-id", entry.OrderID))

		err = g.limiter.Acquire(ctx, req.Venue)
		if err != nil {
			return nil, err
		}

		result, err := driver.FetchOrder(ctx, entry.OrderID, req.Instrument)
		if err != nil {
			g.noteRequestError(req.Venue, err)
			return failureResult(req, fmt.Errorf("hydrate known order %s: %w", entry.OrderID, err)), nil
		}
		g.limiter.OnSuccess(req.Venue)

		return result, nil
	}

	err = g.limiter.Acquire(ctx, req.Venue)
	if err != nil {
		return nil, err
	}

	result, err := driver.CreateOrder(ctx, req)
	if err == nil {
		g.recent.Record(req.ClientOrderID, req.Venue, result.OrderID)
		g.limiter.OnSuccess(req.Venue)
		OrdersSubmittedTotal.WithLabelValues(string(req.Venue), string(req.Side), "success").Inc()

		return result, nil
	}

	switch {
	case g.classifier.IsTimeout(err):
		return g.recoverAfterTimeout(ctx, driver, req, err)
	case g.classifier.IsThrottle(err):
		g.limiter.OnThrottled(req.Venue)
		OrdersSubmittedTotal.WithLabelValues(string(req.Venue), string(req.Side), "throttled").Inc()
		return failureResult(req, err), nil
	default:
		OrdersSubmittedTotal.WithLabelValues(string(req.Venue), string(req.Side), "failure").Inc()
		return failureResult(req, err), nil
	}
}

// recoverAfterTimeout handles a lost response: the order may or may not have
// reached the venue. After a settle delay, scan the venue's recent orders for
// one matching (side, amount within tolerance) created inside the recovery
// window; a match is adopted as ours.
func (g *Gateway) recoverAfterTimeout(ctx context.Context, driver Driver, req *types.OrderRequest, cause error) (*types.OrderResult, error) {
	g.logger.Warn("order-timeout-scanning-recent-orders",
		zap.String("venue", string(req.Venue)),
		zap.String("client-order-id", req.ClientOrderID),
		zap.Error(cause))

	timer := time.NewTimer(g.cfg.RecoverySleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	err := g.limiter.Acquire(ctx, req.Venue)
	if err != nil {
		return nil, err
	}

	orders, err := driver.FetchRecentOrders(ctx, req.Instrument, 10)
	if err != nil {
		g.noteRequestError(req.Venue, err)
		TimeoutRecoveriesTotal.WithLabelValues("scan_failed").Inc()
		return failureResult(req, fmt.Errorf("recovery scan: %w", err)), nil
	}
	g.limiter.OnSuccess(req.Venue)

	cutoff := time.Now().Add(-g.cfg.RecoveryWindow)
	tolerance := req.Amount * g.cfg.RecoveryTolerance / 100

	for _, order := range orders {
		if order.Side != req.Side || order.VenueTimestamp.Before(cutoff) {
			continue
		}
		if math.Abs(order.RequestedAmount-req.Amount) > tolerance {
			continue
		}

		g.recent.Record(req.ClientOrderID, req.Venue, order.OrderID)
		TimeoutRecoveriesTotal.WithLabelValues("found").Inc()
		g.logger.Info("timed-out-order-recovered",
			zap.String("client-order-id", req.ClientOrderID),
			zap.String("order-id", order.OrderID))

		return order, nil
	}

	TimeoutRecoveriesTotal.WithLabelValues("not_found").Inc()

	return failureResult(req, fmt.Errorf("order timed out, no matching recent order: %w", cause)), nil
}

// FreeBalance fetches the venue's fresh balances and returns the free amount
// of one currency. Every observed currency updates the reservation book's
// view of free balances.
func (g *Gateway) FreeBalance(ctx context.Context, venue types.VenueID, currency string) (float64, error) {
	driver, err := g.driver(venue)
	if err != nil {
		return 0, err
	}

	err = g.limiter.Acquire(ctx, venue)
	if err != nil {
		return 0, err
	}

	balances, err := driver.FetchBalance(ctx)
	if err != nil {
		g.noteRequestError(venue, err)
		return 0, &types.VenueError{Venue: venue, Op: "fetchBalance", Err: err}
	}
	g.limiter.OnSuccess(venue)

	for cur, bal := range balances {
		g.reservations.ObserveFree(venue, cur, bal.Free)
		BalanceFree.WithLabelValues(string(venue), cur).Set(bal.Free)
	}

	return balances[currency].Free, nil
}

// Balances fetches one venue's full balance map.
func (g *Gateway) Balances(ctx context.Context, venue types.VenueID) (map[string]types.Balance, error) {
	driver, err := g.driver(venue)
	if err != nil {
		return nil, err
	}

	err = g.limiter.Acquire(ctx, venue)
	if err != nil {
		return nil, err
	}

	balances, err := driver.FetchBalance(ctx)
	if err != nil {
		g.noteRequestError(venue, err)
		return nil, &types.VenueError{Venue: venue, Op: "fetchBalance", Err: err}
	}
	g.limiter.OnSuccess(venue)

	for cur, bal := range balances {
		g.reservations.ObserveFree(venue, cur, bal.Free)
		BalanceFree.WithLabelValues(string(venue), cur).Set(bal.Free)
	}

	return balances, nil
}

// AvailableBalance is the fresh free balance minus live reservations.
func (g *Gateway) AvailableBalance(ctx context.Context, venue types.VenueID, currency string) (float64, error) {
	return g.AvailableBalanceExcluding(ctx, venue, currency, "")
}

// AvailableBalanceExcluding is AvailableBalance with the caller's own
// tradeKey reservations not counted against it.
func (g *Gateway) AvailableBalanceExcluding(ctx context.Context, venue types.VenueID, currency string, tradeKey string) (float64, error) {
	free, err := g.FreeBalance(ctx, venue, currency)
	if err != nil {
		return 0, err
	}

	available := free - g.reservations.Reserved(venue, currency, tradeKey)
	if available < 0 {
		return 0, nil
	}

	return available, nil
}

// Reserve earmarks an amount for a trade. Fails when live reservations would
// exceed the last observed free balance.
func (g *Gateway) Reserve(tradeKey string, venue types.VenueID, currency string, amount float64) error {
	return g.reservations.Reserve(tradeKey, venue, currency, amount)
}

// Release drops every reservation held by the trade.
func (g *Gateway) Release(tradeKey string) {
	g.reservations.Release(tradeKey)
}

// TakerFee returns the cached taker rate for (venue, instrument), or the
// conservative default.
func (g *Gateway) TakerFee(venue types.VenueID, instrument types.Instrument) float64 {
	return g.fees.Taker(venue, instrument)
}

// Fees returns the cached fee schedule entry for (venue, instrument).
func (g *Gateway) Fees(venue types.VenueID, instrument types.Instrument) types.TradingFees {
	fees, _ := g.fees.Lookup(venue, instrument)

	return fees
}

// StartFeeRefresh refreshes all fee schedules now and then on every TTL tick.
func (g *Gateway) StartFeeRefresh() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		g.RefreshAllFees(g.ctx)

		interval := g.cfg.FeeCacheTTL
		if interval <= 0 {
			interval = 24 * time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-g.ctx.Done():
				return
			case <-ticker.C:
				g.RefreshAllFees(g.ctx)
			}
		}
	}()
}

// RefreshAllFees fetches every venue's fee schedule. Failures keep the
// previous (or default) rates.
func (g *Gateway) RefreshAllFees(ctx context.Context) {
	g.mu.RLock()
	drivers := make(map[types.VenueID]Driver, len(g.drivers))
	for venue, driver := range g.drivers {
		drivers[venue] = driver
	}
	g.mu.RUnlock()

	for venue, driver := range drivers {
		if !driver.Capabilities().Has(CapFetchTradingFees) {
			continue
		}

		err := g.limiter.Acquire(ctx, venue)
		if err != nil {
			return
		}

		fees, err := driver.FetchTradingFees(ctx)
		if err != nil {
			g.noteRequestError(venue, err)
			FeeRefreshesTotal.WithLabelValues(string(venue), "failure").Inc()
			g.logger.Warn("fee-refresh-failed",
				zap.String("venue", string(venue)),
				zap.Error(err))
			continue
		}
		g.limiter.OnSuccess(venue)

		g.fees.Store(venue, fees)
		FeeRefreshesTotal.WithLabelValues(string(venue), "success").Inc()
	}
}

// CancelAllOpenOrders cancels open orders on every venue that supports it.
func (g *Gateway) CancelAllOpenOrders(ctx context.Context) error {
	g.mu.RLock()
	drivers := make(map[types.VenueID]Driver, len(g.drivers))
	for venue, driver := range g.drivers {
		drivers[venue] = driver
	}
	g.mu.RUnlock()

	var firstErr error
	for venue, driver := range drivers {
		if !driver.Capabilities().Has(CapCancelOrder) {
			continue
		}

		err := g.limiter.Acquire(ctx, venue)
		if err != nil {
			return err
		}

		err = driver.CancelAllOpenOrders(ctx)
		if err != nil {
			g.noteRequestError(venue, err)
			g.logger.Error("cancel-all-orders-failed",
				zap.String("venue", string(venue)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		g.limiter.OnSuccess(venue)
	}

	return firstErr
}

// Stats returns the venue's rate-limiter statistics.
func (g *Gateway) Stats(venue types.VenueID) ratelimit.Stats {
	return g.limiter.Stats(venue)
}

// Handle returns the venue's handle for state inspection.
func (g *Gateway) Handle(venue types.VenueID) (*Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handle, ok := g.handles[venue]

	return handle, ok
}

// Close stops the fee refresher and every venue handle.
func (g *Gateway) Close() error {
	g.cancel()
	g.wg.Wait()

	g.mu.Lock()
	handles := g.handles
	g.handles = make(map[types.VenueID]*Handle)
	g.mu.Unlock()

	var firstErr error
	for venue, handle := range handles {
		err := handle.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		g.logger.Info("venue-closed", zap.String("venue", string(venue)))
	}

	close(g.updates)
	close(g.events)

	return firstErr
}

// noteRequestError feeds throttle signals from any request path into the
// limiter's backoff.
func (g *Gateway) noteRequestError(venue types.VenueID, err error) {
	if g.classifier.IsThrottle(err) {
		g.limiter.OnThrottled(venue)
	}
}

func (g *Gateway) driver(venue types.VenueID) (Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	driver, ok := g.drivers[venue]
	if !ok {
		return nil, &types.VenueError{
			Venue:     venue,
			Op:        "lookup",
			Permanent: true,
			Err:       fmt.Errorf("venue not initialized"),
		}
	}

	return driver, nil
}

func failureResult(req *types.OrderRequest, err error) *types.OrderResult {
	return &types.OrderResult{
		Venue:           req.Venue,
		ClientOrderID:   req.ClientOrderID,
		Instrument:      req.Instrument,
		Side:            req.Side,
		RequestedAmount: req.Amount,
		VenueTimestamp:  time.Now(),
		Success:         false,
		ErrorDetail:     err.Error(),
	}
}
