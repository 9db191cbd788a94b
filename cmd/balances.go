package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"crossarb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show free and locked balances on every venue",
	RunE:  runBalances,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balancesCmd)
}

func runBalances(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger("warn")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() {
		_ = gateway.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = gateway.Init(ctx)
	if err != nil {
		return fmt.Errorf("init venues: %w", err)
	}

	for _, v := range gateway.Venues() {
		balances, err := gateway.Balances(ctx, v)
		if err != nil {
			fmt.Printf("%s: error: %v\n", v, err)
			continue
		}

		currencies := make([]string, 0, len(balances))
		for currency := range balances {
			currencies = append(currencies, currency)
		}
		sort.Strings(currencies)

		fmt.Printf("%s:\n", v)
		for _, currency := range currencies {
			bal := balances[currency]
			if bal.Free == 0 && bal.Locked == 0 {
				continue
			}
			fmt.Printf("  %-8s free=%.4f locked=%.4f\n", currency, bal.Free, bal.Locked)
		}
	}

	return nil
}
