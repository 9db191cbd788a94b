package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "crossarb",
	Short: "Cross-venue arbitrage engine",
	Long: `Cross-venue arbitrage engine that streams order books from multiple
venues, detects fee-adjusted price dislocations, and executes the paired
buy/sell legs with durable crash recovery.

Configuration comes from environment variables (see .env.example); trade
state is persisted so interrupted trades survive restarts.`,
}

// Execute runs the root command. Called once from main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
