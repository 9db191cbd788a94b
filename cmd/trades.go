package cmd

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crossarb/internal/ledger"
	"crossarb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List trades persisted in the state file",
	Long: `Reads the trade state file and lists every in-flight entry.

Entries older than the orphan age are flagged; inspect them against the
venue's order history and clear them with 'crossarb ack <trade-key>'.`,
	RunE: runTrades,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(tradesCmd)
}

func runTrades(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	l, err := ledger.New(ledger.Config{
		Path:      cfg.StateFile,
		OrphanAge: cfg.OrphanAge,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	resumable, orphaned, err := l.Recover()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	if len(resumable) == 0 && len(orphaned) == 0 {
		fmt.Println("No in-flight trades.")
		return nil
	}

	for _, entry := range resumable {
		fmt.Println(formatEntry(entry, false))
	}
	for _, entry := range orphaned {
		fmt.Println(formatEntry(entry, true))
	}

	fmt.Printf("\n%d in-flight, %d orphaned (state file: %s)\n",
		len(resumable), len(orphaned), cfg.StateFile)

	return nil
}

// formatEntry renders one ledger entry as a single console line.
func formatEntry(entry *ledger.Entry, orphan bool) string {
	marker := "⏳"
	if orphan {
		marker = "⚠️ ORPHAN"
	}

	age := time.Since(entry.StartedAtTime()).Round(time.Second)

	return fmt.Sprintf("%s %s  status=%s  %s %s→%s  amount=%.4f  age=%s",
		marker,
		entry.TradeKey,
		entry.Status,
		entry.Opportunity.Instrument,
		entry.Opportunity.BuyVenue,
		entry.Opportunity.SellVenue,
		entry.Opportunity.Amount,
		age)
}
