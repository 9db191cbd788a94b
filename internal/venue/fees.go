package venue

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"crossarb/pkg/cache"
	"crossarb/pkg/types"
)

// FeeCache holds per-venue trading-fee schedules behind a TTL cache. A lookup
// that misses (never fetched, or older than the TTL) returns the conservative
// per-venue default, so fee math never waits on the network.
type FeeCache struct {
	cache    cache.Cache
	ttl      time.Duration
	fallback types.TradingFees
	logger   *zap.Logger
}

// NewFeeCache creates a fee cache with the given TTL and conservative default
// rates. Rates are fractions of notional (0.001 = 0.1%).
func NewFeeCache(c cache.Cache, ttl time.Duration, defaultMaker, defaultTaker float64, logger *zap.Logger) *FeeCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FeeCache{
		cache: c,
		ttl:   ttl,
		fallback: types.TradingFees{
			Maker:      defaultMaker,
			Taker:      defaultTaker,
			Percentage: true,
		},
		logger: logger,
	}
}

func feeKey(venue types.VenueID, instrument types.Instrument) string {
	return fmt.Sprintf("fees:%s:%s", venue, instrument)
}

// Store caches a venue's fee schedule. A FeeWildcard entry applies venue-wide;
// per-instrument entries override it.
func (f *FeeCache) Store(venue types.VenueID, fees map[types.Instrument]types.TradingFees) {
	for instrument, fee := range fees {
		f.cache.Set(feeKey(venue, instrument), fee, f.ttl)
	}
	f.cache.Wait()

	f.logger.Debug("fees-cached",
		zap.String("venue", string(venue)),
		zap.Int("entries", len(fees)))
}

// Lookup returns the fees for (venue, instrument): per-instrument entry first,
// then the venue wildcard, then the conservative default. cached reports
// whether the value came from the cache rather than the fallback.
func (f *FeeCache) Lookup(venue types.VenueID, instrument types.Instrument) (fees types.TradingFees, cached bool) {
	if v, ok := f.cache.Get(feeKey(venue, instrument)); ok {
		if fee, ok := v.(types.TradingFees); ok {
			return fee, true
		}
	}

	if v, ok := f.cache.Get(feeKey(venue, FeeWildcard)); ok {
		if fee, ok := v.(types.TradingFees); ok {
			return fee, true
		}
	}

	return f.fallback, false
}

// Taker returns the taker rate for (venue, instrument), falling back to the
// conservative default on a cache miss.
func (f *FeeCache) Taker(venue types.VenueID, instrument types.Instrument) float64 {
	fees, _ := f.Lookup(venue, instrument)

	return fees.Taker
}
