package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/check-recon/internal/invoice"
	"github.com/sells-group/check-recon/internal/model"
	sfpkg "github.com/sells-group/check-recon/pkg/salesforce"
)

var invoicesJSON bool

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "List outstanding invoices from the configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("invoices"); err != nil {
			return err
		}

		var sf sfpkg.Client
		if cfg.Invoice.Provider == invoice.ProviderSalesforce {
			client, err := initSalesforce()
			if err != nil {
				return err
			}
			sf = client
		}

		source, err := invoice.NewSource(cfg.Invoice, sf)
		if err != nil {
			return eris.Wrap(err, "build invoice source")
		}

		invoices, err := source.List(ctx)
		if err != nil {
			return eris.Wrap(err, "list invoices")
		}

		if invoicesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(invoices)
		}

		if len(invoices) == 0 {
			fmt.Fprintln(os.Stderr, "No outstanding invoices.")
			return nil
		}

		formatInvoices(os.Stdout, invoices)
		return nil
	},
}

func init() {
	invoicesCmd.Flags().BoolVar(&invoicesJSON, "json", false, "print records as JSON instead of a table")
	rootCmd.AddCommand(invoicesCmd)
}

// formatInvoices writes a tabular list of invoices to w.
func formatInvoices(out io.Writer, invoices []model.InvoiceRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RECORD\tINVOICE\tAMOUNT\tDATE\tPAYEE\tRESIDENT")
	_, _ = fmt.Fprintln(w, "------\t-------\t------\t----\t-----\t--------")

	for i := range invoices {
		inv := &invoices[i]

		payee := inv.Payee
		if len(payee) > 30 {
			payee = payee[:27] + "..."
		}
		date := ""
		if !inv.Date.IsZero() {
			date = inv.Date.Format("2006-01-02")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(inv.RecordID),
			inv.InvoiceNumber,
			dollars(inv.AmountCents),
			date,
			payee,
			inv.ResidentName,
		)
	}
	_ = w.Flush()
}
