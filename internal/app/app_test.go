package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/guard"
	"crossarb/internal/ledger"
	"crossarb/internal/strategy"
	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		LogLevel:      "info",
		HTTPPort:      "0",
		HealthEnabled: true,
		TestMode:      true,

		Venues: []config.VenueConfig{
			{Name: "venue-a", Driver: "sim", RateLimit: 100, Timeout: 5 * time.Second},
			{Name: "venue-b", Driver: "sim", RateLimit: 100, Timeout: 5 * time.Second},
		},
		TradingSymbols: []string{"BTC/USD"},

		OrderBookDepth:     5,
		StalenessThreshold: 500 * time.Millisecond,

		MaxConcurrentTrades:  3,
		MinProfitPercent:     0.5,
		MaxTradeAmount:       100,
		MinTradeAmount:       0.0001,
		CheckInterval:        time.Hour, // engine idles during lifecycle tests
		MaxSlippagePercent:   0.5,
		PartialFillThreshold: 95,
		MaxOpportunityAge:    5 * time.Second,
		OrderTimeout:         5 * time.Second,

		ShutdownBehavior: "wait",
		DrainTimeout:     time.Second,

		StateFile: filepath.Join(t.TempDir(), "trade-state.json"),
		OrphanAge: 24 * time.Hour,

		RateLimitWindow:          time.Second,
		RateLimitDefaultCapacity: 100,

		FeeCacheTTL:     time.Hour,
		DefaultMakerFee: 0.001,
		DefaultTakerFee: 0.002,

		JournalBackend: "off",
	}
}

func startApp(t *testing.T, cfg *config.Config) (*App, chan error) {
	t.Helper()

	a, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run() }()

	deadline := time.Now().Add(5 * time.Second)
	for len(a.Gateway().Venues()) < len(cfg.Venues) {
		if time.Now().After(deadline) {
			a.Stop()
			t.Fatalf("venues never came up: %v", a.Gateway().Venues())
		}
		time.Sleep(10 * time.Millisecond)
	}

	return a, runErr
}

func waitStopped(t *testing.T, a *App, runErr chan error) {
	t.Helper()

	a.Stop()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestAppStartsAndStops(t *testing.T) {
	a, runErr := startApp(t, testConfig(t))

	if got := len(a.Gateway().Venues()); got != 2 {
		t.Fatalf("venues up = %d, want 2", got)
	}

	waitStopped(t, a, runErr)
}

func TestAppRecoversInterruptedTrade(t *testing.T) {
	cfg := testConfig(t)

	// Simulate a crash mid-trade: persist a pending entry, then restart.
	l, err := ledger.New(ledger.Config{Path: cfg.StateFile, OrphanAge: cfg.OrphanAge, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	opp := strategy.NewOpportunity("BTC/USD", "venue-a", "venue-b", 100, 101, 10, 0.001, 0.001, time.Now())
	tradeKey, err := l.RecordStart(opp)
	if err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close seed ledger: %v", err)
	}

	a, runErr := startApp(t, cfg)

	// Recovery runs during startup, shortly after the venues come up.
	deadline := time.Now().Add(5 * time.Second)
	var active []*ledger.Entry
	for {
		active = a.Ledger().Active()
		if len(active) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(active) != 1 || active[0].TradeKey != tradeKey {
		t.Fatalf("active after recovery = %+v, want entry %s", active, tradeKey)
	}

	waitStopped(t, a, runErr)
}

func TestAppForceShutdownKeepsLedgerEntries(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShutdownBehavior = "force"

	a, runErr := startApp(t, cfg)

	opp := strategy.NewOpportunity("BTC/USD", "venue-a", "venue-b", 100, 101, 10, 0.001, 0.001, time.Now())
	if _, err := a.Ledger().RecordStart(opp); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	waitStopped(t, a, runErr)

	// A fresh ledger over the same file sees the interrupted trade.
	l, err := ledger.New(ledger.Config{Path: cfg.StateFile, OrphanAge: cfg.OrphanAge, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	resumable, orphaned, err := l.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(resumable) != 1 || len(orphaned) != 0 {
		t.Fatalf("resumable=%d orphaned=%d, want 1/0", len(resumable), len(orphaned))
	}
}

type staticBalances struct{ value float64 }

func (s staticBalances) FreeBalance(context.Context, types.VenueID, string) (float64, error) {
	return s.value, nil
}

func TestGuardTapJournalFeedsTradeSizes(t *testing.T) {
	g, err := guard.New(guard.Config{
		MinAbsolute:     100,
		HysteresisRatio: 1.0,
		Venues:          []types.VenueID{"venue-a"},
		Currency:        "USD",
		Balances:        staticBalances{value: 1e6},
		Logger:          zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	tap := &guardTapJournal{guard: g}
	opp := strategy.NewOpportunity("BTC/USD", "venue-a", "venue-b", 100, 101, 10, 0.001, 0.001, time.Now())

	err = tap.RecordExecution(context.Background(), &strategy.ExecutionRecord{
		Status:      types.TradeCompleted,
		Opportunity: opp,
	})
	if err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	if got := g.GetStatus().AvgTradeSize; got != 1000 {
		t.Fatalf("AvgTradeSize = %v, want 1000 (amount x buy price)", got)
	}

	// Failed executions must not skew the floor.
	_ = tap.RecordExecution(context.Background(), &strategy.ExecutionRecord{
		Status:      types.TradeFailed,
		Opportunity: opp,
	})
	if got := g.GetStatus().AvgTradeSize; got != 1000 {
		t.Fatalf("AvgTradeSize after failure = %v, want 1000", got)
	}
}

func TestQuoteCurrencyFallsBack(t *testing.T) {
	if got := quoteCurrency([]string{"BTC/USD", "ETH/EUR"}); got != "USD" {
		t.Fatalf("quoteCurrency = %q, want USD", got)
	}
	if got := quoteCurrency(nil); got != "USD" {
		t.Fatalf("quoteCurrency(nil) = %q, want USD", got)
	}
}
