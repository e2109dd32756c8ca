package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/normalize"
	"github.com/sells-group/check-recon/internal/pipeline"
)

var (
	reconcileImages        string
	reconcileFTP           string
	reconcileSamples       int
	reconcileDryRun        bool
	reconcileReport        string
	reconcileExpectedTotal string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a batch of check scans against outstanding invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if reconcileImages != "" {
			cfg.Intake.Dir = reconcileImages
			if reconcileFTP == "" {
				cfg.Intake.FTPURL = ""
			}
		}
		if reconcileFTP != "" {
			cfg.Intake.FTPURL = reconcileFTP
		}
		if reconcileSamples > 0 {
			cfg.Extract.Samples = reconcileSamples
		}
		if reconcileReport != "" {
			cfg.Sinks.XLSX.Enabled = true
			cfg.Sinks.XLSX.Dir = reconcileReport
		}

		opts := pipeline.Options{}
		if reconcileExpectedTotal != "" {
			cents, err := normalize.Amount(reconcileExpectedTotal)
			if err != nil {
				return eris.Wrap(err, "parse --expected-total")
			}
			opts.ExpectedTotalCents = cents
		}

		env, err := initRecon(ctx, "reconcile", reconcileDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Pipeline.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}

		zap.L().Info("reconciliation complete",
			zap.String("run_id", run.ID),
			zap.Int("checks", run.Summary.Checks),
			zap.Int("matched", run.Summary.Matched),
			zap.Int("unmatched", run.Summary.Unmatched),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileImages, "images", "", "directory of check scans (overrides intake.dir)")
	reconcileCmd.Flags().StringVar(&reconcileFTP, "ftp", "", "FTP URL of the lockbox drop (overrides intake.ftp_url)")
	reconcileCmd.Flags().IntVar(&reconcileSamples, "samples", 0, "oracle samples per check (default from config)")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "skip mark-paid and notion writes")
	reconcileCmd.Flags().StringVar(&reconcileReport, "report", "", "write the xlsx report to this directory")
	reconcileCmd.Flags().StringVar(&reconcileExpectedTotal, "expected-total", "", `deposit slip total to cross-check, e.g. "12,345.67"`)
	rootCmd.AddCommand(reconcileCmd)
}
