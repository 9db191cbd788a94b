package strategy

import (
	"sync"
	"time"
)

// varianceSample records how far prices had moved by revalidation time,
// kept win or lose so the telemetry reflects every decision.
type varianceSample struct {
	TradeKey      string
	BuyVariance   float64 // percent, positive = buy price moved against us
	SellVariance  float64 // percent, positive = sell price moved against us
	TotalVariance float64
	ProfitImpact  float64 // totalVariance / original profitPercent, in percent
	Accepted      bool
	At            time.Time
}

// VarianceStats summarizes the bounded variance history.
type VarianceStats struct {
	AvgVariance     float64
	MaxVariance     float64
	RecentCount     int
	AvgProfitImpact float64
}

// varianceHistory is a bounded ring of revalidation variance samples.
type varianceHistory struct {
	mu      sync.Mutex
	samples []varianceSample
	next    int
	count   int
}

func newVarianceHistory(capacity int) *varianceHistory {
	if capacity <= 0 {
		capacity = 100
	}

	return &varianceHistory{samples: make([]varianceSample, capacity)}
}

func (h *varianceHistory) Record(s varianceSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = s
	h.next = (h.next + 1) % len(h.samples)
	if h.count < len(h.samples) {
		h.count++
	}
}

func (h *varianceHistory) Stats() VarianceStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return VarianceStats{}
	}

	var sum, max, impactSum float64
	for i := 0; i < h.count; i++ {
		s := h.samples[i]
		sum += s.TotalVariance
		impactSum += s.ProfitImpact
		if s.TotalVariance > max {
			max = s.TotalVariance
		}
	}

	return VarianceStats{
		AvgVariance:     sum / float64(h.count),
		MaxVariance:     max,
		RecentCount:     h.count,
		AvgProfitImpact: impactSum / float64(h.count),
	}
}
