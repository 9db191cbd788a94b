// Package guard is the execution trip-switch. It disables trading when the
// quote balance falls below a dynamic floor or when too many executions fail
// in a row, and re-enables with hysteresis so the switch does not flap.
package guard

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"crossarb/pkg/types"
)

// BalanceFetcher reads one venue's free balance; satisfied by the venue
// gateway.
type BalanceFetcher interface {
	FreeBalance(ctx context.Context, venue types.VenueID, currency string) (float64, error)
}

// Config holds guard configuration.
type Config struct {
	CheckInterval time.Duration
	// TradeMultiplier scales the rolling average trade size into the
	// disable floor.
	TradeMultiplier float64
	MinAbsolute     float64
	// HysteresisRatio lifts the re-enable floor above the disable floor.
	HysteresisRatio float64
	// MaxConsecutiveFailures trips the switch; FailureCooldown re-arms it.
	MaxConsecutiveFailures int
	FailureCooldown        time.Duration

	Venues   []types.VenueID
	Currency string
	Balances BalanceFetcher
	Logger   *zap.Logger
}

// Status is a point-in-time view for debugging and HTTP endpoints.
type Status struct {
	Enabled             bool
	BalanceOK           bool
	FailuresOK          bool
	LastBalance         float64
	LastCheck           time.Time
	DisableThreshold    float64
	EnableThreshold     float64
	AvgTradeSize        float64
	ConsecutiveFailures int
}

// Guard is the trip-switch. Allow is lock-free; the hot path reads two
// atomics.
type Guard struct {
	cfg    Config
	logger *zap.Logger

	balanceOK  atomic.Bool
	failuresOK atomic.Bool

	mu               sync.RWMutex
	lastBalance      float64
	lastCheck        time.Time
	recentTrades     []float64
	disableThreshold float64
	enableThreshold  float64
	failures         int
	trippedAt        time.Time
}

// New creates a guard. It starts enabled.
func New(cfg Config) (*Guard, error) {
	if cfg.Balances == nil {
		return nil, fmt.Errorf("balance fetcher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.TradeMultiplier <= 0 {
		cfg.TradeMultiplier = 2
	}
	if cfg.MinAbsolute <= 0 {
		return nil, fmt.Errorf("min absolute floor must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = 5 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	g := &Guard{
		cfg:              cfg,
		logger:           cfg.Logger,
		recentTrades:     make([]float64, 0, 20),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}
	g.balanceOK.Store(true)
	g.failuresOK.Store(true)

	GuardEnabled.Set(1)
	GuardDisableThreshold.Set(g.disableThreshold)
	GuardEnableThreshold.Set(g.enableThreshold)

	return g, nil
}

// Allow reports whether executions may proceed. Lock-free.
func (g *Guard) Allow() bool {
	if g.failuresOK.Load() {
		return g.balanceOK.Load()
	}

	// Re-arm after the cooldown so one bad streak is not permanent.
	g.mu.Lock()
	rearmed := !g.trippedAt.IsZero() && time.Since(g.trippedAt) >= g.cfg.FailureCooldown
	if rearmed {
		g.failures = 0
		g.trippedAt = time.Time{}
	}
	g.mu.Unlock()

	if rearmed {
		g.failuresOK.Store(true)
		GuardStateChanges.Inc()
		g.updateEnabledMetric()
		g.logger.Info("guard-rearmed-after-cooldown")

		return g.balanceOK.Load()
	}

	return false
}

// RecordResult feeds one execution outcome into the failure counter and,
// on success, the rolling trade-size window.
func (g *Guard) RecordResult(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if success {
		g.failures = 0
		return
	}

	g.failures++
	GuardFailureStreak.Set(float64(g.failures))
	if g.failures >= g.cfg.MaxConsecutiveFailures && g.failuresOK.Load() {
		g.failuresOK.Store(false)
		g.trippedAt = time.Now()
		GuardStateChanges.Inc()
		g.updateEnabledMetric()

		g.logger.Warn("guard-tripped-by-failures",
			zap.Int("consecutive-failures", g.failures),
			zap.Duration("cooldown", g.cfg.FailureCooldown))
	}
}

// RecordTrade adds a completed trade's quote size to the rolling window and
// recalculates the balance floor.
func (g *Guard) RecordTrade(size float64) {
	if size <= 0 {
		g.logger.Warn("invalid-trade-size", zap.Float64("size", size))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.recentTrades = append(g.recentTrades, size)
	if len(g.recentTrades) > 20 {
		g.recentTrades = g.recentTrades[1:]
	}

	avg := averageLocked(g.recentTrades)
	g.disableThreshold = math.Max(avg*g.cfg.TradeMultiplier, g.cfg.MinAbsolute)
	g.enableThreshold = g.disableThreshold * g.cfg.HysteresisRatio

	GuardAvgTradeSize.Set(avg)
	GuardDisableThreshold.Set(g.disableThreshold)
	GuardEnableThreshold.Set(g.enableThreshold)
}

// CheckBalance sums the quote balance across venues and applies the
// hysteresis transition.
func (g *Guard) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		GuardCheckDuration.Observe(time.Since(start).Seconds())
	}()

	total := 0.0
	fetched := 0
	for _, venue := range g.cfg.Venues {
		free, err := g.cfg.Balances.FreeBalance(ctx, venue, g.cfg.Currency)
		if err != nil {
			g.logger.Warn("guard-balance-fetch-failed",
				zap.String("venue", string(venue)),
				zap.Error(err))
			continue
		}
		total += free
		fetched++
	}
	if fetched == 0 {
		return fmt.Errorf("no venue balances reachable")
	}

	g.mu.Lock()
	g.lastBalance = total
	g.lastCheck = time.Now()
	disable := g.disableThreshold
	enable := g.enableThreshold
	g.mu.Unlock()

	GuardBalance.Set(total)

	ok := g.balanceOK.Load()
	switch {
	case ok && total < disable:
		g.balanceOK.Store(false)
		GuardStateChanges.Inc()
		g.updateEnabledMetric()
		g.logger.Warn("guard-disabled-low-balance",
			zap.Float64("balance", total),
			zap.Float64("disable-threshold", disable))
	case !ok && total >= enable:
		g.balanceOK.Store(true)
		GuardStateChanges.Inc()
		g.updateEnabledMetric()
		g.logger.Info("guard-enabled",
			zap.Float64("balance", total),
			zap.Float64("enable-threshold", enable))
	default:
		g.logger.Debug("guard-balance-checked",
			zap.Float64("balance", total),
			zap.Bool("enabled", ok))
	}

	return nil
}

// Start checks once immediately, then monitors until the context ends.
func (g *Guard) Start(ctx context.Context) {
	g.logger.Info("guard-started",
		zap.Duration("check-interval", g.cfg.CheckInterval),
		zap.Float64("min-absolute", g.cfg.MinAbsolute),
		zap.Float64("hysteresis-ratio", g.cfg.HysteresisRatio))

	err := g.CheckBalance(ctx)
	if err != nil {
		g.logger.Error("initial-guard-check-failed", zap.Error(err))
	}

	go g.monitorLoop(ctx)
}

func (g *Guard) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("guard-stopped")
			return
		case <-ticker.C:
			err := g.CheckBalance(ctx)
			if err != nil {
				g.logger.Error("guard-check-error", zap.Error(err))
			}
		}
	}
}

// GetStatus returns the current guard state.
func (g *Guard) GetStatus() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return Status{
		Enabled:             g.balanceOK.Load() && g.failuresOK.Load(),
		BalanceOK:           g.balanceOK.Load(),
		FailuresOK:          g.failuresOK.Load(),
		LastBalance:         g.lastBalance,
		LastCheck:           g.lastCheck,
		DisableThreshold:    g.disableThreshold,
		EnableThreshold:     g.enableThreshold,
		AvgTradeSize:        averageLocked(g.recentTrades),
		ConsecutiveFailures: g.failures,
	}
}

func (g *Guard) updateEnabledMetric() {
	if g.balanceOK.Load() && g.failuresOK.Load() {
		GuardEnabled.Set(1)
	} else {
		GuardEnabled.Set(0)
	}
}

func averageLocked(sizes []float64) float64 {
	if len(sizes) == 0 {
		return 0
	}

	sum := 0.0
	for _, s := range sizes {
		sum += s
	}

	return sum / float64(len(sizes))
}
