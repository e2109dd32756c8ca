package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/pkg/salesforce"
)

// SalesforceSink bulk-marks matched billing records paid through the
// collections API.
type SalesforceSink struct {
	client salesforce.Client
	object string
}

// NewSalesforceSink builds the write-back sink over an existing session.
func NewSalesforceSink(client salesforce.Client, object string) *SalesforceSink {
	if object == "" {
		object = "Billing__c"
	}
	return &SalesforceSink{client: client, object: object}
}

// Name implements ResultSink.
func (s *SalesforceSink) Name() string { return "salesforce" }

// Publish collects the matched billing IDs and updates them in batches.
// Per-record rejections from the collections API are folded into the error;
// accepted records in the same batch stay written.
func (s *SalesforceSink) Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error {
	var updates []salesforce.BillingUpdate
	for _, res := range results {
		if !res.Matched || res.Invoice == nil {
			continue
		}
		updates = append(updates, salesforce.BillingUpdate{
			ID: res.Invoice.RecordID,
			Fields: map[string]any{
				"Paid__c":    true,
				"Matched__c": true,
			},
		})
	}
	if len(updates) == 0 {
		return nil
	}

	outcomes, err := salesforce.BulkUpdateBillings(ctx, s.client, s.object, updates)
	if err != nil {
		return eris.Wrap(err, "salesforce: mark billings paid")
	}

	var failures []string
	for _, out := range outcomes {
		if !out.Success {
			failures = append(failures, fmt.Sprintf("%s: %s", out.ID, strings.Join(out.Errors, ", ")))
		}
	}

	zap.L().Info("sink: salesforce billings marked paid",
		zap.String("object", s.object),
		zap.Int("updated", len(outcomes)-len(failures)),
		zap.Int("failed", len(failures)))

	if len(failures) > 0 {
		return eris.Errorf("salesforce: %d paid updates rejected: %s",
			len(failures), strings.Join(failures, "; "))
	}
	return nil
}
