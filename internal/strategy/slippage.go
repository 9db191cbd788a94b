package strategy

import (
	"fmt"

	"crossarb/pkg/types"
)

// slippagePercent is the deviation of the average fill price from the best
// level when walking the book to fill amount, in percent. Buys walk the asks,
// sells walk the bids. An error means the visible depth cannot fill the
// amount at all.
func slippagePercent(book *types.OrderBookSnapshot, amount float64, side types.OrderSide) (float64, error) {
	var levels []types.BookLevel
	if side == types.SideBuy {
		levels = book.Asks
	} else {
		levels = book.Bids
	}

	if len(levels) == 0 {
		return 0, fmt.Errorf("empty %s side on %s %s", side, book.Venue, book.Instrument)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("non-positive amount %f", amount)
	}

	best := levels[0].Price
	remaining := amount
	cost := 0.0

	for _, level := range levels {
		take := level.Amount
		if take > remaining {
			take = remaining
		}
		cost += take * level.Price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}

	if remaining > 0 {
		return 0, fmt.Errorf("book depth fills %.8f of %.8f", amount-remaining, amount)
	}

	avg := cost / amount
	slippage := (avg - best) / best * 100
	if side == types.SideSell {
		slippage = (best - avg) / best * 100
	}

	return slippage, nil
}
