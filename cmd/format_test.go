package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/ledger"
	"crossarb/internal/strategy"
	"crossarb/pkg/types"
)

func TestFormatEntry(t *testing.T) {
	opp := strategy.NewOpportunity("BTC/USD", "venue-a", "venue-b", 100, 101, 10, 0.001, 0.001, time.Now())
	entry := &ledger.Entry{
		TradeKey:    "BTC/USD-venue-a-venue-b",
		Opportunity: *opp,
		Status:      types.TradePending,
		StartedAt:   time.Now().Add(-30 * time.Second).UnixMilli(),
	}

	line := formatEntry(entry, false)
	assert.Contains(t, line, "BTC/USD-venue-a-venue-b")
	assert.Contains(t, line, "status=pending")
	assert.Contains(t, line, "venue-a→venue-b")
	assert.NotContains(t, line, "ORPHAN")

	orphanLine := formatEntry(entry, true)
	assert.Contains(t, orphanLine, "ORPHAN")
}

func TestFormatTopOfBook(t *testing.T) {
	ts := time.Date(2026, 8, 25, 14, 30, 5, 120e6, time.UTC)

	snap := &types.OrderBookSnapshot{
		Venue:          "venue-a",
		Instrument:     "BTC/USD",
		Bids:           []types.BookLevel{{Price: 99.5, Amount: 2}},
		Asks:           []types.BookLevel{{Price: 100.5, Amount: 1}},
		VenueTimestamp: ts,
	}

	line := formatTopOfBook(snap)
	require.Contains(t, line, "venue-a")
	assert.Contains(t, line, "bid 99.5000 x 2.0000")
	assert.Contains(t, line, "ask 100.5000 x 1.0000")
	assert.NotContains(t, line, "stale")
}

func TestFormatTopOfBookEmptyAndStale(t *testing.T) {
	snap := &types.OrderBookSnapshot{
		Venue:          "venue-b",
		Instrument:     "BTC/USD",
		Stale:          true,
		VenueTimestamp: time.Now(),
	}

	line := formatTopOfBook(snap)
	assert.Contains(t, line, "bid -")
	assert.Contains(t, line, "ask -")
	assert.Contains(t, line, "(stale)")
}
