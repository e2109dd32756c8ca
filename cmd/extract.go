package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/check-recon/internal/consensus"
	"github.com/sells-group/check-recon/internal/intake"
)

var extractSamples int

var extractCmd = &cobra.Command{
	Use:   "extract <scan>",
	Short: "Extract one check scan and print the consensus record",
	Long:  "Debug aid: runs consensus extraction on a single PNG, JPEG, or PDF scan and prints the resulting check record as JSON, with no matching and no sinks.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if extractSamples > 0 {
			cfg.Extract.Samples = extractSamples
		}
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		imgs, err := intake.FromFile(args[0])
		if err != nil {
			return err
		}

		profile, err := initProfile()
		if err != nil {
			return err
		}
		o, _, err := initOracle(profile)
		if err != nil {
			return err
		}
		builder, err := consensus.NewBuilder(o, cfg.Extract.Samples)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		for _, img := range imgs {
			rec, err := builder.Build(ctx, img)
			if err != nil {
				return eris.Wrapf(err, "extract %s", img.Name)
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractSamples, "samples", 0, "oracle samples per check (default from config)")
	rootCmd.AddCommand(extractCmd)
}
