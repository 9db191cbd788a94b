// Package testutil holds shared fixtures and a scriptable fake venue driver.
package testutil

import (
	"time"

	"crossarb/pkg/types"
)

// Book builds a snapshot with single-level sides, the common test shape.
func Book(venue types.VenueID, instrument types.Instrument, askPrice, askAmount, bidPrice, bidAmount float64) *types.OrderBookSnapshot {
	now := time.Now()

	return &types.OrderBookSnapshot{
		Venue:          venue,
		Instrument:     instrument,
		Asks:           []types.BookLevel{{Price: askPrice, Amount: askAmount}},
		Bids:           []types.BookLevel{{Price: bidPrice, Amount: bidAmount}},
		VenueTimestamp: now,
		ReceivedAt:     now,
	}
}

// Levels is shorthand for building a book side from (price, amount) pairs.
func Levels(pairs ...float64) []types.BookLevel {
	levels := make([]types.BookLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		levels = append(levels, types.BookLevel{Price: pairs[i], Amount: pairs[i+1]})
	}

	return levels
}
