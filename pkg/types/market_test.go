package types

import (
	"testing"
	"time"
)

func TestInstrumentSplit(t *testing.T) {
	tests := []struct {
		name      string
		in        Instrument
		wantBase  string
		wantQuote string
		wantValid bool
	}{
		{"simple pair", "BTC/USDT", "BTC", "USDT", true},
		{"fiat pair", "ETH/EUR", "ETH", "EUR", true},
		{"missing separator", "BTCUSDT", "", "", false},
		{"empty quote", "BTC/", "BTC", "", false},
		{"empty base", "/USDT", "", "USDT", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Base(); got != tt.wantBase {
				t.Errorf("Base() = %q, want %q", got, tt.wantBase)
			}
			if got := tt.in.Quote(); got != tt.wantQuote {
				t.Errorf("Quote() = %q, want %q", got, tt.wantQuote)
			}
			if got := tt.in.Valid(); got != tt.wantValid {
				t.Errorf("Valid() = %v, want %v", got, tt.wantValid)
			}
		})
	}
}

func TestOrderBookSnapshotBestLevels(t *testing.T) {
	snap := &OrderBookSnapshot{
		Venue:      "alpha",
		Instrument: "BTC/USDT",
		Asks: []BookLevel{
			{Price: 100.5, Amount: 2},
			{Price: 101.0, Amount: 5},
		},
		Bids: []BookLevel{
			{Price: 100.0, Amount: 3},
			{Price: 99.5, Amount: 10},
		},
	}

	ask, ok := snap.BestAsk()
	if !ok {
		t.Fatal("expected best ask")
	}
	if ask.Price != 100.5 || ask.Amount != 2 {
		t.Errorf("BestAsk() = %+v, want {100.5 2}", ask)
	}

	bid, ok := snap.BestBid()
	if !ok {
		t.Fatal("expected best bid")
	}
	if bid.Price != 100.0 || bid.Amount != 3 {
		t.Errorf("BestBid() = %+v, want {100 3}", bid)
	}

	empty := &OrderBookSnapshot{}
	if _, ok := empty.BestAsk(); ok {
		t.Error("empty book should have no best ask")
	}
	if _, ok := empty.BestBid(); ok {
		t.Error("empty book should have no best bid")
	}
}

func TestOrderBookSnapshotCopy(t *testing.T) {
	orig := &OrderBookSnapshot{
		Venue:      "alpha",
		Instrument: "BTC/USDT",
		Asks:       []BookLevel{{Price: 100, Amount: 1}},
		Bids:       []BookLevel{{Price: 99, Amount: 1}},
	}

	cp := orig.Copy()
	cp.Asks[0].Price = 200
	cp.Bids[0].Amount = 50

	if orig.Asks[0].Price != 100 {
		t.Errorf("copy mutated original ask: %v", orig.Asks[0])
	}
	if orig.Bids[0].Amount != 1 {
		t.Errorf("copy mutated original bid: %v", orig.Bids[0])
	}
}

func TestOrderBookSnapshotAge(t *testing.T) {
	now := time.Now()
	snap := &OrderBookSnapshot{VenueTimestamp: now.Add(-250 * time.Millisecond)}

	age := snap.Age(now)
	if age != 250*time.Millisecond {
		t.Errorf("Age() = %s, want 250ms", age)
	}

	// Future venue timestamp yields a negative age (clock skew signal).
	future := &OrderBookSnapshot{VenueTimestamp: now.Add(time.Second)}
	if got := future.Age(now); got >= 0 {
		t.Errorf("Age() = %s, want negative", got)
	}
}

func TestOrderResultFillPercent(t *testing.T) {
	tests := []struct {
		name      string
		requested float64
		filled    float64
		want      float64
	}{
		{"full fill", 10, 10, 100},
		{"partial 80", 10, 8, 80},
		{"partial 97", 10, 9.7, 97},
		{"zero requested", 0, 5, 0},
		{"negative requested", -1, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &OrderResult{RequestedAmount: tt.requested, FilledAmount: tt.filled}
			got := r.FillPercent()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("FillPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTradeStatusTerminal(t *testing.T) {
	if TradePending.Terminal() || TradeBuyExecuted.Terminal() {
		t.Error("pending and buyExecuted must not be terminal")
	}
	if !TradeCompleted.Terminal() || !TradeFailed.Terminal() {
		t.Error("completed and failed must be terminal")
	}
}
