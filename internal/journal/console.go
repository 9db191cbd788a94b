package journal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"crossarb/internal/strategy"
	"crossarb/pkg/types"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Console pretty-prints journal entries to stdout. The default backend for
// local runs.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console journal.
func NewConsole(logger *zap.Logger) *Console {
	logger.Info("console-journal-initialized")

	return &Console{logger: logger}
}

// RecordOpportunity pretty-prints a detected opportunity.
func (c *Console) RecordOpportunity(_ context.Context, opp *strategy.Opportunity) error {
	fmt.Println("\n" + rule)
	fmt.Printf("🎯 ARBITRAGE OPPORTUNITY DETECTED\n")
	fmt.Println(rule)
	fmt.Printf("ID:         %s\n", opp.ID[:8])
	fmt.Printf("Instrument: %s\n", opp.Instrument)
	fmt.Printf("Route:      buy %s @ %.6f → sell %s @ %.6f\n",
		opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice)
	fmt.Printf("Time:       %s\n", opp.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Println(rule)
	fmt.Printf("💰 PROFIT ANALYSIS\n")
	fmt.Printf("  Amount:        %.6f %s\n", opp.Amount, opp.Instrument.Base())
	fmt.Printf("  Gross Spread:  %.6f\n", opp.SellPrice-opp.BuyPrice)
	fmt.Printf("  Total Fees:    %.6f %s\n", opp.TotalFees, opp.Instrument.Quote())
	fmt.Printf("  Net Profit:    %.6f %s (%.4f%%)\n",
		opp.ProfitAmount, opp.Instrument.Quote(), opp.ProfitPercent)
	fmt.Println(rule)

	return nil
}

// RecordExecution pretty-prints a finished execution attempt.
func (c *Console) RecordExecution(_ context.Context, rec *strategy.ExecutionRecord) error {
	fmt.Println("\n" + rule)
	if rec.Status == types.TradeCompleted {
		fmt.Printf("✅ TRADE COMPLETED\n")
	} else {
		fmt.Printf("❌ TRADE FAILED\n")
	}
	fmt.Println(rule)
	fmt.Printf("Trade Key:  %s\n", rec.TradeKey)
	fmt.Printf("Time:       %s\n", rec.CompletedAt.Format("2006-01-02 15:04:05"))
	if rec.BuyResult != nil {
		fmt.Printf("Buy Leg:    %s filled %.6f @ %.6f (fee %.6f)\n",
			rec.BuyResult.Venue, rec.BuyResult.FilledAmount,
			rec.BuyResult.AvgPrice, rec.BuyResult.FeePaid)
	}
	if rec.SellResult != nil {
		fmt.Printf("Sell Leg:   %s filled %.6f @ %.6f (fee %.6f)\n",
			rec.SellResult.Venue, rec.SellResult.FilledAmount,
			rec.SellResult.AvgPrice, rec.SellResult.FeePaid)
	}
	if rec.Status == types.TradeCompleted {
		fmt.Printf("Profit:     %.6f (expected %.6f)\n",
			rec.ActualProfit, rec.Opportunity.ProfitAmount)
	} else if rec.Detail != "" {
		fmt.Printf("Reason:     %s\n", rec.Detail)
	}
	fmt.Println(rule)

	return nil
}

// Close is a no-op for the console journal.
func (c *Console) Close() error {
	c.logger.Info("closing-console-journal")

	return nil
}
