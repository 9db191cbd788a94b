package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchDepth int

//nolint:gochecknoglobals // Cobra boilerplate
var watchCmd = &cobra.Command{
	Use:   "watch <instrument>",
	Short: "Stream top-of-book updates from every venue",
	Long: `Subscribes to the instrument's order book on every enabled venue
and prints the best bid/ask as updates arrive. Ctrl-C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVarP(&watchDepth, "depth", "d", 5, "Order book depth to request")
}

func runWatch(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	instrument := types.Instrument(args[0])
	if !instrument.Valid() {
		return fmt.Errorf("instrument %q is not BASE/QUOTE", args[0])
	}

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = gateway.Init(ctx)
	if err != nil {
		return fmt.Errorf("init venues: %w", err)
	}

	err = gateway.Subscribe(instrument, watchDepth)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Printf("Watching %s on %d venue(s)...\n", instrument, len(gateway.Venues()))

	for {
		select {
		case <-sigCh:
			return nil
		case snap, ok := <-gateway.Updates():
			if !ok {
				return nil
			}
			if snap.Instrument != instrument {
				continue
			}
			fmt.Println(formatTopOfBook(snap))
		}
	}
}

// formatTopOfBook renders one snapshot's best bid/ask as a console line.
func formatTopOfBook(snap *types.OrderBookSnapshot) string {
	bid, hasBid := snap.BestBid()
	ask, hasAsk := snap.BestAsk()

	line := fmt.Sprintf("%-12s %s", snap.Venue, snap.VenueTimestamp.Format("15:04:05.000"))
	if hasBid {
		line += fmt.Sprintf("  bid %.4f x %.4f", bid.Price, bid.Amount)
	} else {
		line += "  bid -"
	}
	if hasAsk {
		line += fmt.Sprintf("  ask %.4f x %.4f", ask.Price, ask.Amount)
	} else {
		line += "  ask -"
	}
	if snap.Stale {
		line += "  (stale)"
	}

	return line
}
