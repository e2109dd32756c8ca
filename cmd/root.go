package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "check-recon",
	Short: "Check payment reconciliation pipeline",
	Long:  "Reads scanned check batches, extracts payment fields through consensus sampling of a vision model, matches checks to outstanding invoices, and posts outcomes to the billing system.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
