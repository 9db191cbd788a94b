package strategy

import (
	"math"
	"testing"

	"crossarb/pkg/types"
)

func multiLevelBook() *types.OrderBookSnapshot {
	return &types.OrderBookSnapshot{
		Venue:      "venue-a",
		Instrument: testInstrument,
		Asks: []types.BookLevel{
			{Price: 100.0, Amount: 5},
			{Price: 100.5, Amount: 5},
			{Price: 101.0, Amount: 5},
		},
		Bids: []types.BookLevel{
			{Price: 99.0, Amount: 5},
			{Price: 98.5, Amount: 5},
		},
	}
}

func TestSlippageZeroWithinBestLevel(t *testing.T) {
	got, err := slippagePercent(multiLevelBook(), 5, types.SideBuy)
	if err != nil {
		t.Fatalf("slippagePercent: %v", err)
	}
	if got != 0 {
		t.Fatalf("slippage %.6f, want 0 when the best level covers the amount", got)
	}
}

func TestSlippageBuyWalksAsks(t *testing.T) {
	// 5 @ 100 + 5 @ 100.5 = avg 100.25 vs best 100 -> 0.25%.
	got, err := slippagePercent(multiLevelBook(), 10, types.SideBuy)
	if err != nil {
		t.Fatalf("slippagePercent: %v", err)
	}
	if math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("buy slippage %.6f, want 0.25", got)
	}
}

func TestSlippageSellWalksBids(t *testing.T) {
	// 5 @ 99 + 5 @ 98.5 = avg 98.75 vs best 99 -> positive 0.2525...%.
	got, err := slippagePercent(multiLevelBook(), 10, types.SideSell)
	if err != nil {
		t.Fatalf("slippagePercent: %v", err)
	}
	want := (99.0 - 98.75) / 99.0 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("sell slippage %.6f, want %.6f", got, want)
	}
}

func TestSlippageInsufficientDepth(t *testing.T) {
	_, err := slippagePercent(multiLevelBook(), 100, types.SideBuy)
	if err == nil {
		t.Fatal("amount beyond visible depth accepted")
	}
}

func TestSlippageEmptySide(t *testing.T) {
	book := &types.OrderBookSnapshot{Venue: "venue-a", Instrument: testInstrument}
	_, err := slippagePercent(book, 1, types.SideBuy)
	if err == nil {
		t.Fatal("empty side accepted")
	}
}
