package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crossarb/internal/ledger"
	"crossarb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var ackCmd = &cobra.Command{
	Use:   "ack <trade-key>",
	Short: "Acknowledge and remove an orphaned trade",
	Long: `Removes an orphaned entry from the state file after you have
reconciled it against the venues' order history. Only entries older than
the orphan age can be acknowledged; younger entries may still be live.`,
	Args: cobra.ExactArgs(1),
	RunE: runAck,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(ackCmd)
}

func runAck(cmd *cobra.Command, args []string) error {
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

	_, _, err = l.Recover()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	err = l.AcknowledgeOrphan(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("✅ Removed %s from %s\n", args[0], cfg.StateFile)

	return nil
}
