package invoice

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/normalize"
	"github.com/sells-group/check-recon/pkg/salesforce"
)

// SalesforceSource lists open billings from a Salesforce billing SObject.
type SalesforceSource struct {
	client     salesforce.Client
	object     string
	extraWhere string
}

// NewSalesforceSource builds a source over an existing Salesforce session.
func NewSalesforceSource(client salesforce.Client, cfg SalesforceConfig) *SalesforceSource {
	object := cfg.BillingObject
	if object == "" {
		object = DefaultConfig().Salesforce.BillingObject
	}
	return &SalesforceSource{client: client, object: object, extraWhere: cfg.ExtraWhere}
}

// List queries the open billings and maps them into invoice records.
func (s *SalesforceSource) List(ctx context.Context) ([]model.InvoiceRecord, error) {
	billings, err := salesforce.FindOpenBillings(ctx, s.client, s.object, s.extraWhere)
	if err != nil {
		return nil, eris.Wrap(err, "invoice: list salesforce billings")
	}

	invoices := make([]model.InvoiceRecord, 0, len(billings))
	for _, b := range billings {
		if b.ID == "" {
			zap.L().Warn("invoice: skipping billing without id",
				zap.String("invoice_number", b.Name))
			continue
		}

		var date time.Time
		if b.InvoiceDate != "" {
			if d, err := normalize.Date(b.InvoiceDate); err == nil {
				date = d
			} else {
				zap.L().Debug("invoice: unparseable billing date",
					zap.String("record_id", b.ID),
					zap.String("date", b.InvoiceDate))
			}
		}

		invoices = append(invoices, model.InvoiceRecord{
			RecordID:      b.ID,
			InvoiceNumber: b.Name,
			AmountCents:   int64(math.Round(b.Amount * 100)),
			Date:          date,
			Payee:         b.Payee,
			ResidentName:  b.Resident,
			RawPayee:      b.Payee,
		})
	}

	zap.L().Info("invoice: listed salesforce billings",
		zap.String("object", s.object),
		zap.Int("count", len(invoices)))
	return invoices, nil
}
