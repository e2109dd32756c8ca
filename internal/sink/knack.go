package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/invoice"
	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/pkg/knack"
)

// KnackSink flips the paid flags on every billing record a check matched.
type KnackSink struct {
	client    knack.Client
	object    string
	paidFlags []string
}

// NewKnackSink builds the write-back sink over an existing Knack client.
func NewKnackSink(client knack.Client, cfg invoice.KnackConfig) *KnackSink {
	object := cfg.BillingObject
	if object == "" {
		object = invoice.DefaultConfig().Knack.BillingObject
	}
	flags := cfg.PaidFlags
	if len(flags) == 0 {
		flags = invoice.DefaultConfig().Knack.PaidFlags
	}
	return &KnackSink{client: client, object: object, paidFlags: flags}
}

// Name implements ResultSink.
func (s *KnackSink) Name() string { return "knack" }

// Publish marks each matched invoice paid. A failed update is reported and
// the remaining records still get written.
func (s *KnackSink) Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error {
	fields := make(map[string]any, len(s.paidFlags))
	for _, flag := range s.paidFlags {
		fields[flag] = "Yes"
	}

	var updated int
	var failures []string
	for _, res := range results {
		if !res.Matched || res.Invoice == nil {
			continue
		}
		if err := s.client.UpdateRecord(ctx, s.object, res.Invoice.RecordID, fields); err != nil {
			zap.L().Error("sink: knack paid update failed",
				zap.String("record_id", res.Invoice.RecordID),
				zap.String("invoice_number", res.Invoice.InvoiceNumber),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", res.Invoice.RecordID, err))
			continue
		}
		updated++
	}

	zap.L().Info("sink: knack billings marked paid",
		zap.String("object", s.object),
		zap.Int("updated", updated),
		zap.Int("failed", len(failures)))

	if len(failures) > 0 {
		return eris.Errorf("knack: %d paid updates failed: %s",
			len(failures), strings.Join(failures, "; "))
	}
	return nil
}
