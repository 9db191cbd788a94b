package strategy

import (
	"math"
	"testing"
	"time"
)

func TestCalculateProfitPercent(t *testing.T) {
	tests := []struct {
		name     string
		buy      float64
		sell     float64
		buyFee   float64
		sellFee  float64
		want     float64
		wantZero bool
	}{
		{
			// buy 100, sell 101, 0.1% taker both legs:
			// (101 - 100 - 0.1 - 0.101) / 100 * 100 = 0.799
			name: "reference dislocation", buy: 100, sell: 101,
			buyFee: 0.001, sellFee: 0.001, want: 0.799,
		},
		{
			name: "fees eat the edge", buy: 100, sell: 100.1,
			buyFee: 0.001, sellFee: 0.001, want: -0.1001,
		},
		{
			name: "no fees", buy: 50, sell: 51,
			buyFee: 0, sellFee: 0, want: 2.0,
		},
		{name: "zero buy price", buy: 0, sell: 101, wantZero: true},
		{name: "zero sell price", buy: 100, sell: 0, wantZero: true},
		{name: "negative buy price", buy: -5, sell: 101, wantZero: true},
		{name: "negative sell price", buy: 100, sell: -1, wantZero: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateProfitPercent(tt.buy, tt.sell, tt.buyFee, tt.sellFee)
			if tt.wantZero {
				if got != 0 {
					t.Errorf("CalculateProfitPercent() = %v, want 0", got)
				}
				return
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateProfitPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewOpportunity(t *testing.T) {
	ts := time.Now().Add(-time.Second)
	opp := NewOpportunity("BTC/USDT", "alpha", "beta", 100, 101, 10, 0.001, 0.001, ts)

	if opp.ID == "" {
		t.Error("ID should be assigned")
	}
	if !opp.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %s, want %s", opp.Timestamp, ts)
	}
	if math.Abs(opp.ProfitPercent-0.799) > 1e-9 {
		t.Errorf("ProfitPercent = %v, want 0.799", opp.ProfitPercent)
	}
	// Per-unit net 0.799 on amount 10.
	if math.Abs(opp.ProfitAmount-7.99) > 1e-9 {
		t.Errorf("ProfitAmount = %v, want 7.99", opp.ProfitAmount)
	}
	// 100*0.001 + 101*0.001 per unit, times 10.
	if math.Abs(opp.TotalFees-2.01) > 1e-9 {
		t.Errorf("TotalFees = %v, want 2.01", opp.TotalFees)
	}
}

func TestOpportunityTradeKey(t *testing.T) {
	opp := NewOpportunity("BTC/USDT", "alpha", "beta", 100, 101, 10, 0, 0, time.Now())

	if got := opp.TradeKey(); got != "BTC/USDT-alpha-beta" {
		t.Errorf("TradeKey() = %q, want BTC/USDT-alpha-beta", got)
	}

	// Direction matters: the reverse pair is a different in-flight trade.
	rev := NewOpportunity("BTC/USDT", "beta", "alpha", 100, 101, 10, 0, 0, time.Now())
	if rev.TradeKey() == opp.TradeKey() {
		t.Error("reversed venues must produce a different trade key")
	}
}
