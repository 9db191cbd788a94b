// Package app wires configuration into running components and supervises
// their lifecycle: venue gateway, book manager, trade ledger, journal,
// execution guard, strategy engine and the operational HTTP server.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"crossarb/internal/books"
	"crossarb/internal/guard"
	"crossarb/internal/journal"
	"crossarb/internal/ledger"
	"crossarb/internal/ratelimit"
	"crossarb/internal/strategy"
	"crossarb/internal/venue"
	"crossarb/internal/venue/feed"
	"crossarb/internal/venue/sim"
	"crossarb/pkg/cache"
	"crossarb/pkg/config"
	"crossarb/pkg/healthprobe"
	"crossarb/pkg/httpserver"
	"crossarb/pkg/types"
)

// App is the assembled application.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	health  *healthprobe.HealthChecker
	gateway *venue.Gateway
	books   *books.Manager
	ledger  *ledger.Ledger
	journal journal.Journal
	guard   *guard.Guard
	engine  *strategy.Engine
	server  *httpserver.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds every component from cfg. Nothing is started; call Run.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:    cfg,
		logger: logger,
		health: healthprobe.New(),
		ctx:    ctx,
		cancel: cancel,
	}

	err := a.setupGateway()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup gateway: %w", err)
	}

	a.books = books.New(books.Config{
		Logger: logger,
		Source: a.gateway.Updates(),
	})

	a.ledger, err = ledger.New(ledger.Config{
		Path:      cfg.StateFile,
		OrphanAge: cfg.OrphanAge,
		Logger:    logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup ledger: %w", err)
	}

	err = a.setupJournal()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup journal: %w", err)
	}

	err = a.setupGuard()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup guard: %w", err)
	}

	err = a.setupEngine()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup engine: %w", err)
	}

	a.server = httpserver.New(&httpserver.Config{
		Port:   cfg.HTTPPort,
		Logger: logger,
		Health: a.health,
		Books:  a.books,
		Guard:  a.guard,
	})

	return a, nil
}

func (a *App) setupGateway() error {
	ristretto, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:          a.cfg.RateLimitDefaultCapacity,
		Window:            a.cfg.RateLimitWindow,
		InitialBackoff:    a.cfg.RateLimitInitialBackoff,
		MaxBackoff:        a.cfg.RateLimitMaxBackoff,
		BackoffMultiplier: a.cfg.RateLimitBackoffMultiplier,
		Logger:            a.logger,
	})

	registry := venue.NewRegistry()
	registry.Register("sim", sim.NewFactory(sim.Options{
		Instruments: instruments(a.cfg.TradingSymbols),
	}))
	registry.Register("feed", feed.Factory)

	gateway, err := venue.New(venue.Config{
		Venues:   a.cfg.Venues,
		Registry: registry,
		Limiter:  limiter,
		Cache:    ristretto,
		Logger:   a.logger,

		StalenessThreshold:    a.cfg.StalenessThreshold,
		MaxReconnectAttempts:  a.cfg.MaxReconnectAttempts,
		ReconnectInitialDelay: a.cfg.ReconnectInitialDelay,
		ReconnectMaxDelay:     a.cfg.ReconnectMaxDelay,
		StreamRestartDelay:    a.cfg.StreamRestartDelay,

		FeeCacheTTL:     a.cfg.FeeCacheTTL,
		DefaultMakerFee: a.cfg.DefaultMakerFee,
		DefaultTakerFee: a.cfg.DefaultTakerFee,

		RecoveryWindow:    a.cfg.RecoveryWindow,
		RecoverySleep:     a.cfg.RecoverySleep,
		RecoveryTolerance: a.cfg.RecoveryTolerance,
	})
	if err != nil {
		return err
	}
	a.gateway = gateway

	return nil
}

func (a *App) setupJournal() error {
	switch a.cfg.JournalBackend {
	case "console":
		a.journal = journal.NewConsole(a.logger)
	case "postgres":
		pg, err := journal.NewPostgresURL(a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return err
		}
		a.journal = pg
	case "off":
		a.journal = nil
	}

	return nil
}

func (a *App) setupGuard() error {
	if !a.cfg.GuardEnabled {
		return nil
	}

	venues := make([]types.VenueID, 0, len(a.cfg.Venues))
	for _, v := range a.cfg.Venues {
		venues = append(venues, types.VenueID(v.Name))
	}

	currency := quoteCurrency(a.cfg.TradingSymbols)

	g, err := guard.New(guard.Config{
		CheckInterval:          a.cfg.GuardCheckInterval,
		MinAbsolute:            a.cfg.GuardMinQuoteBalance,
		HysteresisRatio:        a.cfg.GuardResumeFactor,
		MaxConsecutiveFailures: a.cfg.GuardMaxConsecutiveFailures,
		Venues:                 venues,
		Currency:               currency,
		Balances:               a.gateway,
		Logger:                 a.logger,
	})
	if err != nil {
		return err
	}
	a.guard = g

	return nil
}

func (a *App) setupEngine() error {
	// The engine sees the journal through a wrapper that feeds completed
	// trade sizes into the guard's dynamic balance floor.
	var j strategy.Journal
	if a.journal != nil {
		j = a.journal
	}
	if a.guard != nil {
		j = &guardTapJournal{next: j, guard: a.guard}
	}

	// strategy.Guard is an interface; a typed nil *guard.Guard must not
	// leak into it.
	var g strategy.Guard
	if a.guard != nil {
		g = a.guard
	}

	engine, err := strategy.New(strategy.Config{
		Instruments: instruments(a.cfg.TradingSymbols),

		MaxConcurrentTrades:     a.cfg.MaxConcurrentTrades,
		MinProfitPercent:        a.cfg.MinProfitPercent,
		MaxTradeAmount:          a.cfg.MaxTradeAmount,
		MinTradeAmount:          a.cfg.MinTradeAmount,
		CheckInterval:           a.cfg.CheckInterval,
		MaxSlippagePercent:      a.cfg.MaxSlippagePercent,
		PartialFillThreshold:    a.cfg.PartialFillThreshold,
		PriceTolerancePercent:   a.cfg.PriceTolerancePercent,
		MaxProfitErosionPercent: a.cfg.MaxProfitErosionPercent,
		DynamicTolerance:        a.cfg.DynamicTolerance,
		MaxOpportunityAge:       a.cfg.MaxOpportunityAge,
		ReservePercent:          a.cfg.ReservePercent,
		OrderTimeout:            a.cfg.OrderTimeout,
		OrderBookDepth:          a.cfg.OrderBookDepth,
		DrainTimeout:            a.cfg.DrainTimeout,

		Logger: a.logger,
	}, a.gateway, a.books, a.ledger, j, g)
	if err != nil {
		return err
	}
	a.engine = engine

	return nil
}

// guardTapJournal forwards to the wrapped journal and reports completed
// trade notionals to the guard so its floor tracks actual trade sizes.
type guardTapJournal struct {
	next  strategy.Journal
	guard *guard.Guard
}

func (j *guardTapJournal) RecordOpportunity(ctx context.Context, opp *strategy.Opportunity) error {
	if j.next == nil {
		return nil
	}

	return j.next.RecordOpportunity(ctx, opp)
}

func (j *guardTapJournal) RecordExecution(ctx context.Context, rec *strategy.ExecutionRecord) error {
	if rec.Status == types.TradeCompleted && rec.Opportunity != nil {
		j.guard.RecordTrade(rec.Opportunity.Amount * rec.Opportunity.BuyPrice)
	}
	if j.next == nil {
		return nil
	}

	return j.next.RecordExecution(ctx, rec)
}

// Ledger exposes the trade ledger for the operator commands.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Gateway exposes the venue gateway for the operator commands.
func (a *App) Gateway() *venue.Gateway {
	return a.gateway
}

func instruments(symbols []string) []types.Instrument {
	out := make([]types.Instrument, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, types.Instrument(s))
	}

	return out
}

// quoteCurrency picks the quote side of the first symbol; the guard floor
// is denominated in it.
func quoteCurrency(symbols []string) string {
	for _, s := range symbols {
		inst := types.Instrument(s)
		if inst.Valid() {
			return inst.Quote()
		}
	}

	return "USD"
}
