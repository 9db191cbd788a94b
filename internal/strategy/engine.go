// Package strategy detects cross-venue price dislocations and executes the
// paired buy/sell legs that realize them.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crossarb/pkg/types"
)

// Gateway is the venue access the engine needs: market data, balances with
// reservation accounting, fees, and idempotent order submission.
type Gateway interface {
	Subscribe(instrument types.Instrument, depth int) error
	FetchOrderBook(ctx context.Context, venue types.VenueID, instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error)
	ExecuteTrade(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error)
	AvailableBalanceExcluding(ctx context.Context, venue types.VenueID, currency string, tradeKey string) (float64, error)
	Reserve(tradeKey string, venue types.VenueID, currency string, amount float64) error
	Release(tradeKey string)
	TakerFee(venue types.VenueID, instrument types.Instrument) float64
}

// BookSource serves the latest snapshot per venue for an instrument.
type BookSource interface {
	VenueSnapshots(instrument types.Instrument) map[types.VenueID]*types.OrderBookSnapshot
}

// Ledger is the durable trade record. A RecordStart failure means the trade
// must not proceed.
type Ledger interface {
	RecordStart(opp *Opportunity) (string, error)
	RecordBuyExecuted(tradeKey string, buyResult *types.OrderResult) error
	RecordComplete(tradeKey string, success bool, sellResult *types.OrderResult) error
}

// ExecutionRecord is the journal's view of a finished execution attempt.
type ExecutionRecord struct {
	TradeKey     string
	Opportunity  *Opportunity
	Status       types.TradeStatus
	ActualProfit float64
	BuyResult    *types.OrderResult
	SellResult   *types.OrderResult
	Detail       string
	CompletedAt  time.Time
}

// Journal receives detected opportunities and execution outcomes. Journal
// errors are never fatal to the trade path.
type Journal interface {
	RecordOpportunity(ctx context.Context, opp *Opportunity) error
	RecordExecution(ctx context.Context, rec *ExecutionRecord) error
}

// Guard is an optional trip-switch consulted before the gating sequence.
type Guard interface {
	Allow() bool
	RecordResult(success bool)
}

// Config holds strategy engine configuration.
type Config struct {
	Instruments []types.Instrument

	MaxConcurrentTrades     int
	MinProfitPercent        float64
	MaxTradeAmount          float64
	MinTradeAmount          float64
	CheckInterval           time.Duration
	MaxSlippagePercent      float64
	PartialFillThreshold    float64 // percent
	PriceTolerancePercent   float64
	MaxProfitErosionPercent float64
	DynamicTolerance        bool
	MaxOpportunityAge       time.Duration
	ReservePercent          float64 // extra quote margin on the buy leg
	OrderTimeout            time.Duration
	OrderBookDepth          int
	DrainTimeout            time.Duration

	Logger *zap.Logger
}

// Engine runs the monitoring tick: scan, gate, execute. The activeTrades set
// is the race fence — a trade key is checked and inserted in one critical
// section with no suspension points, so concurrent ticks cannot double-run
// the same (instrument, buyVenue, sellVenue).
type Engine struct {
	cfg     Config
	logger  *zap.Logger
	gateway Gateway
	books   BookSource
	ledger  Ledger
	journal Journal
	guard   Guard

	variance *varianceHistory

	mu           sync.Mutex
	activeTrades map[string]bool

	ctx        context.Context // execution context, outlives the tick
	cancel     context.CancelFunc
	tickCtx    context.Context
	tickCancel context.CancelFunc
	wg         sync.WaitGroup // tick loop
	inflight   sync.WaitGroup // execute goroutines
}

// New creates a strategy engine. Journal and guard are optional.
func New(cfg Config, gateway Gateway, books BookSource, ledger Ledger, journal Journal, guard Guard) (*Engine, error) {
	if gateway == nil || books == nil || ledger == nil {
		return nil, fmt.Errorf("gateway, books and ledger are required")
	}
	if cfg.MaxConcurrentTrades <= 0 {
		cfg.MaxConcurrentTrades = 3
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.PartialFillThreshold <= 0 {
		cfg.PartialFillThreshold = 95
	}
	if cfg.PriceTolerancePercent <= 0 {
		cfg.PriceTolerancePercent = 0.1
	}
	if cfg.MaxProfitErosionPercent <= 0 {
		cfg.MaxProfitErosionPercent = 20
	}
	if cfg.MaxOpportunityAge <= 0 {
		cfg.MaxOpportunityAge = 5 * time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 30 * time.Second
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 10
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	tickCtx, tickCancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:          cfg,
		logger:       cfg.Logger,
		gateway:      gateway,
		books:        books,
		ledger:       ledger,
		journal:      journal,
		guard:        guard,
		variance:     newVarianceHistory(100),
		activeTrades: make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
		tickCtx:      tickCtx,
		tickCancel:   tickCancel,
	}, nil
}

// Start subscribes every configured instrument and launches the tick loop.
func (e *Engine) Start() error {
	e.logger.Info("strategy-engine-starting",
		zap.Int("instruments", len(e.cfg.Instruments)),
		zap.Duration("check-interval", e.cfg.CheckInterval))

	for _, instrument := range e.cfg.Instruments {
		err := e.gateway.Subscribe(instrument, e.cfg.OrderBookDepth)
		if err != nil {
			e.logger.Warn("subscribe-failed",
				zap.String("instrument", string(instrument)),
				zap.Error(err))
		}
	}

	e.wg.Add(1)
	go e.tickLoop()

	return nil
}

func (e *Engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.tickCtx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			for _, instrument := range e.cfg.Instruments {
				e.scan(instrument)
			}
			ScanDurationSeconds.Observe(time.Since(start).Seconds())
		}
	}
}

// scan computes pairwise candidates for one instrument and spawns executions
// for every candidate that passes the gate.
func (e *Engine) scan(instrument types.Instrument) {
	snaps := e.books.VenueSnapshots(instrument)

	fresh := make(map[types.VenueID]*types.OrderBookSnapshot, len(snaps))
	for venue, snap := range snaps {
		if snap.Stale {
			OpportunitiesRejected.WithLabelValues("stale_book").Inc()
			continue
		}
		fresh[venue] = snap
	}

	if len(fresh) < 2 {
		return
	}

	candidates := e.candidates(instrument, fresh)
	if len(candidates) == 0 {
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ProfitPercent > candidates[j].ProfitPercent
	})

	for _, opp := range candidates {
		OpportunitiesFound.WithLabelValues(string(instrument)).Inc()
		e.journalOpportunity(opp)

		if !e.shouldExecute(opp) {
			continue
		}

		e.inflight.Add(1)
		go func(opp *Opportunity) {
			defer e.inflight.Done()
			e.execute(opp)
		}(opp)
	}
}

// candidates builds fee-adjusted opportunities for every ordered venue pair.
func (e *Engine) candidates(instrument types.Instrument, snaps map[types.VenueID]*types.OrderBookSnapshot) []*Opportunity {
	var out []*Opportunity

	for buyVenue, buyBook := range snaps {
		ask, okAsk := buyBook.BestAsk()
		if !okAsk {
			continue
		}

		for sellVenue, sellBook := range snaps {
			if sellVenue == buyVenue {
				continue
			}
			bid, okBid := sellBook.BestBid()
			if !okBid {
				continue
			}

			if bid.Price <= ask.Price {
				continue
			}

			amount := min(ask.Amount, bid.Amount, e.cfg.MaxTradeAmount)
			if amount <= 0 {
				continue
			}

			timestamp := buyBook.VenueTimestamp
			if sellBook.VenueTimestamp.Before(timestamp) {
				timestamp = sellBook.VenueTimestamp
			}

			opp := NewOpportunity(
				instrument, buyVenue, sellVenue,
				ask.Price, bid.Price, amount,
				e.gateway.TakerFee(buyVenue, instrument),
				e.gateway.TakerFee(sellVenue, instrument),
				timestamp,
			)

			if opp.ProfitPercent < e.cfg.MinProfitPercent {
				continue
			}

			out = append(out, opp)
		}
	}

	return out
}

// shouldExecute runs the gating sequence, short-circuiting on any failure.
// After the lock step succeeds, every failure path must release the key.
func (e *Engine) shouldExecute(opp *Opportunity) bool {
	if e.guard != nil && !e.guard.Allow() {
		OpportunitiesRejected.WithLabelValues("guard_open").Inc()
		return false
	}

	e.mu.Lock()
	atCap := len(e.activeTrades) >= e.cfg.MaxConcurrentTrades
	e.mu.Unlock()
	if atCap {
		OpportunitiesRejected.WithLabelValues("concurrency_cap").Inc()
		return false
	}

	err := e.validateOpportunity(opp)
	if err != nil {
		OpportunitiesRejected.WithLabelValues("validation").Inc()
		e.logger.Debug("opportunity-rejected",
			zap.String("trade-key", opp.TradeKey()),
			zap.Error(err))
		return false
	}

	if !e.acquireKey(opp.TradeKey()) {
		OpportunitiesRejected.WithLabelValues("key_held").Inc()
		return false
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.OrderTimeout)
	defer cancel()

	err = e.checkBalances(ctx, opp, opp.TradeKey())
	if err != nil {
		OpportunitiesRejected.WithLabelValues("balance").Inc()
		e.logger.Debug("balance-check-failed",
			zap.String("trade-key", opp.TradeKey()),
			zap.Error(err))
		e.releaseKey(opp.TradeKey())
		return false
	}

	err = e.validateCurrentPrices(ctx, opp)
	if err != nil {
		OpportunitiesRejected.WithLabelValues("price_moved").Inc()
		e.logger.Debug("price-revalidation-failed",
			zap.String("trade-key", opp.TradeKey()),
			zap.Error(err))
		e.releaseKey(opp.TradeKey())
		return false
	}

	return true
}

// acquireKey is the race fence: check and insert in one critical section
// with no suspension points inside.
func (e *Engine) acquireKey(tradeKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeTrades[tradeKey] {
		return false
	}
	e.activeTrades[tradeKey] = true
	ActiveTrades.Set(float64(len(e.activeTrades)))

	return true
}

func (e *Engine) releaseKey(tradeKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.activeTrades, tradeKey)
	ActiveTrades.Set(float64(len(e.activeTrades)))
}

// ActiveTradeCount returns the number of keys currently held.
func (e *Engine) ActiveTradeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.activeTrades)
}

// validateOpportunity checks age and sanity bounds.
func (e *Engine) validateOpportunity(opp *Opportunity) error {
	age := time.Since(opp.Timestamp)
	if age > e.cfg.MaxOpportunityAge {
		return &types.StalenessError{
			Venue:      opp.BuyVenue,
			Instrument: opp.Instrument,
			Age:        age,
			Threshold:  e.cfg.MaxOpportunityAge,
		}
	}
	if age < 0 {
		e.logger.Warn("severe-clock-skew-detected",
			zap.String("trade-key", opp.TradeKey()),
			zap.Duration("age", age))
		return fmt.Errorf("opportunity timestamp %s in the future", opp.Timestamp)
	}

	if opp.ProfitPercent <= 0 || opp.ProfitAmount <= 0 {
		return fmt.Errorf("non-positive profit %.6f%%", opp.ProfitPercent)
	}
	if opp.Amount <= 0 || opp.BuyPrice <= 0 || opp.SellPrice <= 0 {
		return fmt.Errorf("non-positive amount or price")
	}
	if opp.Amount < e.cfg.MinTradeAmount {
		return fmt.Errorf("amount %.8f below minimum %.8f", opp.Amount, e.cfg.MinTradeAmount)
	}

	return nil
}

// requiredQuote is the buy-leg cost plus the configured reserve margin.
func (e *Engine) requiredQuote(opp *Opportunity) float64 {
	return opp.Amount * opp.BuyPrice * (1 + e.cfg.ReservePercent/100)
}

// checkBalances requires quote on the buy venue and base on the sell venue,
// net of reservations other than the caller's own.
func (e *Engine) checkBalances(ctx context.Context, opp *Opportunity, tradeKey string) error {
	quote := opp.Instrument.Quote()
	base := opp.Instrument.Base()

	availableQuote, err := e.gateway.AvailableBalanceExcluding(ctx, opp.BuyVenue, quote, tradeKey)
	if err != nil {
		return fmt.Errorf("buy venue balance: %w", err)
	}
	required := e.requiredQuote(opp)
	if availableQuote < required {
		return &types.BalanceRaceError{
			Venue:     opp.BuyVenue,
			Currency:  quote,
			Required:  required,
			Available: availableQuote,
		}
	}

	availableBase, err := e.gateway.AvailableBalanceExcluding(ctx, opp.SellVenue, base, tradeKey)
	if err != nil {
		return fmt.Errorf("sell venue balance: %w", err)
	}
	if availableBase < opp.Amount {
		return &types.BalanceRaceError{
			Venue:     opp.SellVenue,
			Currency:  base,
			Required:  opp.Amount,
			Available: availableBase,
		}
	}

	return nil
}

// validateCurrentPrices fetches fresh books and rejects when the detected
// edge has moved beyond tolerance or the depth cannot absorb the amount.
// The variance sample is recorded win or lose.
func (e *Engine) validateCurrentPrices(ctx context.Context, opp *Opportunity) error {
	buyBook, err := e.gateway.FetchOrderBook(ctx, opp.BuyVenue, opp.Instrument, e.cfg.OrderBookDepth)
	if err != nil {
		return fmt.Errorf("fresh buy book: %w", err)
	}
	sellBook, err := e.gateway.FetchOrderBook(ctx, opp.SellVenue, opp.Instrument, e.cfg.OrderBookDepth)
	if err != nil {
		return fmt.Errorf("fresh sell book: %w", err)
	}

	ask, okAsk := buyBook.BestAsk()
	bid, okBid := sellBook.BestBid()
	if !okAsk || !okBid {
		return fmt.Errorf("fresh book missing a side")
	}

	buyVariance := (ask.Price - opp.BuyPrice) / opp.BuyPrice * 100
	sellVariance := (opp.SellPrice - bid.Price) / opp.SellPrice * 100
	totalVariance := buyVariance + sellVariance
	profitImpact := 0.0
	if opp.ProfitPercent > 0 {
		profitImpact = totalVariance / opp.ProfitPercent * 100
	}

	err = e.checkTolerances(opp, buyVariance, sellVariance, totalVariance, profitImpact)

	e.variance.Record(varianceSample{
		TradeKey:      opp.TradeKey(),
		BuyVariance:   buyVariance,
		SellVariance:  sellVariance,
		TotalVariance: totalVariance,
		ProfitImpact:  profitImpact,
		Accepted:      err == nil,
		At:            time.Now(),
	})
	if err != nil {
		return err
	}

	buySlip, err := slippagePercent(buyBook, opp.Amount, types.SideBuy)
	if err != nil {
		return fmt.Errorf("buy slippage: %w", err)
	}
	sellSlip, err := slippagePercent(sellBook, opp.Amount, types.SideSell)
	if err != nil {
		return fmt.Errorf("sell slippage: %w", err)
	}
	if buySlip > e.cfg.MaxSlippagePercent || sellSlip > e.cfg.MaxSlippagePercent {
		return fmt.Errorf("slippage buy %.4f%% / sell %.4f%% exceeds %.4f%%",
			buySlip, sellSlip, e.cfg.MaxSlippagePercent)
	}

	return nil
}

func (e *Engine) checkTolerances(opp *Opportunity, buyVariance, sellVariance, totalVariance, profitImpact float64) error {
	if buyVariance > e.cfg.PriceTolerancePercent {
		return fmt.Errorf("buy price moved %.4f%% against us (tolerance %.4f%%)",
			buyVariance, e.cfg.PriceTolerancePercent)
	}
	if sellVariance > e.cfg.PriceTolerancePercent {
		return fmt.Errorf("sell price moved %.4f%% against us (tolerance %.4f%%)",
			sellVariance, e.cfg.PriceTolerancePercent)
	}

	if e.cfg.DynamicTolerance && totalVariance > 0 && profitImpact > e.cfg.MaxProfitErosionPercent {
		return fmt.Errorf("variance erodes %.2f%% of profit (max %.2f%%)",
			profitImpact, e.cfg.MaxProfitErosionPercent)
	}

	return nil
}

// execute runs the two-leg trade. The trade key is held for the duration;
// reservations and the key are released on every path. The sell leg is never
// attempted unless the buy leg succeeded and filled at least the threshold.
func (e *Engine) execute(opp *Opportunity) {
	tradeKey := opp.TradeKey()
	defer func() {
		e.gateway.Release(tradeKey)
		e.releaseKey(tradeKey)
	}()

	ctx, cancel := context.WithTimeout(e.ctx, 2*e.cfg.OrderTimeout)
	defer cancel()

	// Stale-data guard: the gate's balances may be seconds old by now.
	err := e.checkBalances(ctx, opp, tradeKey)
	if err != nil {
		OpportunitiesRejected.WithLabelValues("balance_race").Inc()
		e.logger.Warn("balance-race-at-execution",
			zap.String("trade-key", tradeKey),
			zap.Error(err))
		return
	}

	quote := opp.Instrument.Quote()
	base := opp.Instrument.Base()

	err = e.gateway.Reserve(tradeKey, opp.BuyVenue, quote, e.requiredQuote(opp))
	if err != nil {
		e.logger.Warn("quote-reservation-failed", zap.String("trade-key", tradeKey), zap.Error(err))
		return
	}
	err = e.gateway.Reserve(tradeKey, opp.SellVenue, base, opp.Amount)
	if err != nil {
		e.logger.Warn("base-reservation-failed", zap.String("trade-key", tradeKey), zap.Error(err))
		return
	}

	// Intent must be durable before any order leaves the process.
	_, err = e.ledger.RecordStart(opp)
	if err != nil {
		e.logger.Error("trade-intent-not-durable",
			zap.String("trade-key", tradeKey),
			zap.Error(err))
		return
	}

	e.logger.Info("executing-trade",
		zap.String("trade-key", tradeKey),
		zap.Float64("amount", opp.Amount),
		zap.Float64("profit-percent", opp.ProfitPercent))

	buyResult := e.submitLeg(ctx, &types.OrderRequest{
		Venue:         opp.BuyVenue,
		Instrument:    opp.Instrument,
		Side:          types.SideBuy,
		Amount:        opp.Amount,
		Type:          types.TypeMarket,
		ClientOrderID: uuid.New().String(),
	})
	if !buyResult.Success {
		e.finishFailed(ctx, opp, tradeKey, nil, buyResult, nil,
			fmt.Sprintf("buy leg failed: %s", buyResult.ErrorDetail))
		return
	}

	fillPercent := buyResult.FillPercent()
	if fillPercent < e.cfg.PartialFillThreshold {
		PartialFillsTotal.Inc()
		pfErr := &types.PartialFillError{
			TradeKey:    tradeKey,
			FillPercent: fillPercent,
			Threshold:   e.cfg.PartialFillThreshold,
		}
		e.logger.Error("partial-fill-below-threshold",
			zap.String("trade-key", tradeKey),
			zap.Float64("fill-percent", fillPercent),
			zap.Float64("threshold", e.cfg.PartialFillThreshold),
			zap.Float64("stranded-amount", buyResult.FilledAmount))
		e.finishFailed(ctx, opp, tradeKey, nil, buyResult, nil, pfErr.Error())
		return
	}

	err = e.ledger.RecordBuyExecuted(tradeKey, buyResult)
	if err != nil {
		e.logger.Error("buy-record-not-durable",
			zap.String("trade-key", tradeKey),
			zap.Error(err))
		e.finishFailed(ctx, opp, tradeKey, nil, buyResult, nil, "ledger write failed after buy")
		return
	}

	// The sell covers exactly what the buy filled.
	sellResult := e.submitLeg(ctx, &types.OrderRequest{
		Venue:         opp.SellVenue,
		Instrument:    opp.Instrument,
		Side:          types.SideSell,
		Amount:        buyResult.FilledAmount,
		Type:          types.TypeMarket,
		ClientOrderID: uuid.New().String(),
	})
	if !sellResult.Success {
		// Position mismatch: the buy is on the books with no matching sell.
		e.logger.Error("POSITION-MISMATCH-buy-succeeded-sell-failed",
			zap.String("trade-key", tradeKey),
			zap.Float64("held-amount", buyResult.FilledAmount),
			zap.String("sell-error", sellResult.ErrorDetail))
		e.finishFailed(ctx, opp, tradeKey, nil, buyResult, sellResult,
			"sell leg failed after successful buy, operator attention required")
		return
	}

	actualProfit := (sellResult.Cost - sellResult.FeePaid) - (buyResult.Cost + buyResult.FeePaid)

	err = e.ledger.RecordComplete(tradeKey, true, sellResult)
	if err != nil {
		e.logger.Error("completion-record-failed",
			zap.String("trade-key", tradeKey),
			zap.Error(err))
	}

	TradesTotal.WithLabelValues("completed").Inc()
	if actualProfit > 0 {
		ProfitRealized.Add(actualProfit)
	}
	if e.guard != nil {
		e.guard.RecordResult(true)
	}
	e.journalExecution(ctx, &ExecutionRecord{
		TradeKey:     tradeKey,
		Opportunity:  opp,
		Status:       types.TradeCompleted,
		ActualProfit: actualProfit,
		BuyResult:    buyResult,
		SellResult:   sellResult,
		CompletedAt:  time.Now(),
	})

	e.logger.Info("trade-completed",
		zap.String("trade-key", tradeKey),
		zap.Float64("actual-profit", actualProfit),
		zap.Float64("expected-profit", opp.ProfitAmount))
}

// submitLeg runs one ExecuteTrade under the per-order timeout, mapping
// transport errors into a failed result.
func (e *Engine) submitLeg(ctx context.Context, req *types.OrderRequest) *types.OrderResult {
	legCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()

	result, err := e.gateway.ExecuteTrade(legCtx, req)
	if err != nil {
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

	return result
}

// finishFailed records the terminal failed state and emits telemetry.
func (e *Engine) finishFailed(ctx context.Context, opp *Opportunity, tradeKey string, sellForLedger, buyResult, sellResult *types.OrderResult, detail string) {
	err := e.ledger.RecordComplete(tradeKey, false, sellForLedger)
	if err != nil {
		e.logger.Error("failure-record-failed",
			zap.String("trade-key", tradeKey),
			zap.Error(err))
	}

	TradesTotal.WithLabelValues("failed").Inc()
	if e.guard != nil {
		e.guard.RecordResult(false)
	}
	e.journalExecution(ctx, &ExecutionRecord{
		TradeKey:    tradeKey,
		Opportunity: opp,
		Status:      types.TradeFailed,
		BuyResult:   buyResult,
		SellResult:  sellResult,
		Detail:      detail,
		CompletedAt: time.Now(),
	})
}

func (e *Engine) journalOpportunity(opp *Opportunity) {
	if e.journal == nil {
		return
	}

	err := e.journal.RecordOpportunity(e.ctx, opp)
	if err != nil {
		e.logger.Warn("journal-opportunity-failed", zap.Error(err))
	}
}

func (e *Engine) journalExecution(ctx context.Context, rec *ExecutionRecord) {
	if e.journal == nil {
		return
	}

	err := e.journal.RecordExecution(ctx, rec)
	if err != nil {
		e.logger.Warn("journal-execution-failed", zap.Error(err))
	}
}

// VarianceStats summarizes the revalidation variance history.
func (e *Engine) VarianceStats() VarianceStats {
	return e.variance.Stats()
}

// Close stops the tick loop first, so no new trades start, then waits up to
// the drain timeout for in-flight trades, warning for any still running.
func (e *Engine) Close() error {
	e.logger.Info("strategy-engine-stopping")

	e.tickCancel()
	e.wg.Wait()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		e.logger.Warn("drain-timeout-with-trades-in-flight",
			zap.Int("active-trades", e.ActiveTradeCount()),
			zap.Duration("waited", e.cfg.DrainTimeout))
	}

	e.cancel()
	e.logger.Info("strategy-engine-stopped")

	return nil
}

// Halt stops the tick loop without draining in-flight trades. Interrupted
// trades stay in the ledger and surface on the next recovery.
func (e *Engine) Halt() {
	e.tickCancel()
	e.cancel()
	e.wg.Wait()
}

func min(values ...float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}

	return m
}
