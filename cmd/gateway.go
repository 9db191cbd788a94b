package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"crossarb/internal/ratelimit"
	"crossarb/internal/venue"
	"crossarb/internal/venue/feed"
	"crossarb/internal/venue/sim"
	"crossarb/pkg/cache"
	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

// newGateway builds a standalone venue gateway for the operator commands.
// The run command wires its gateway through the app instead.
func newGateway(cfg *config.Config, logger *zap.Logger) (*venue.Gateway, error) {
	ristretto, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		Capacity:          cfg.RateLimitDefaultCapacity,
		Window:            cfg.RateLimitWindow,
		InitialBackoff:    cfg.RateLimitInitialBackoff,
		MaxBackoff:        cfg.RateLimitMaxBackoff,
		BackoffMultiplier: cfg.RateLimitBackoffMultiplier,
		Logger:            logger,
	})

	instruments := make([]types.Instrument, 0, len(cfg.TradingSymbols))
	for _, s := range cfg.TradingSymbols {
		instruments = append(instruments, types.Instrument(s))
	}

	registry := venue.NewRegistry()
	registry.Register("sim", sim.NewFactory(sim.Options{Instruments: instruments}))
	registry.Register("feed", feed.Factory)

	return venue.New(venue.Config{
		Venues:   cfg.Venues,
		Registry: registry,
		Limiter:  limiter,
		Cache:    ristretto,
		Logger:   logger,

		StalenessThreshold:    cfg.StalenessThreshold,
		MaxReconnectAttempts:  cfg.MaxReconnectAttempts,
		ReconnectInitialDelay: cfg.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
		StreamRestartDelay:    cfg.StreamRestartDelay,

		FeeCacheTTL:     cfg.FeeCacheTTL,
		DefaultMakerFee: cfg.DefaultMakerFee,
		DefaultTakerFee: cfg.DefaultTakerFee,

		RecoveryWindow:    cfg.RecoveryWindow,
		RecoverySleep:     cfg.RecoverySleep,
		RecoveryTolerance: cfg.RecoveryTolerance,
	})
}
