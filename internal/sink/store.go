package sink

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/store"
)

// StoreSink persists per-check outcomes to the run ledger.
type StoreSink struct {
	store store.Store
}

// NewStoreSink returns a sink writing result rows through st.
func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st}
}

// Name implements ResultSink.
func (s *StoreSink) Name() string { return "store" }

// resultDetail is the JSON blob stored alongside the ledger columns.
type resultDetail struct {
	CheckNumber string            `json:"check_number,omitempty"`
	Remitter    string            `json:"remitter,omitempty"`
	Scores      model.FieldScores `json:"scores"`
}

// Publish converts the run's match results into ledger rows and saves them.
func (s *StoreSink) Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error {
	records := make([]model.ResultRecord, 0, len(results))
	for _, res := range results {
		rec := model.ResultRecord{
			RunID:      run.ID,
			Source:     res.Check.Source,
			Matched:    res.Matched,
			Score:      res.Score,
			Confidence: res.Check.Confidence,
		}
		if res.Invoice != nil {
			rec.InvoiceID = res.Invoice.RecordID
			rec.InvoiceNumber = res.Invoice.InvoiceNumber
			rec.AmountCents = res.Invoice.AmountCents
		} else if res.Check.Amount.Resolved {
			rec.AmountCents = res.Check.Amount.Cents
		}

		detail, err := json.Marshal(resultDetail{
			CheckNumber: res.Check.CheckNumber.Value,
			Remitter:    res.Check.Remitter.Value,
			Scores:      res.Scores,
		})
		if err != nil {
			return eris.Wrapf(err, "sink: marshal detail for %s", res.Check.Source)
		}
		rec.Detail = string(detail)

		records = append(records, rec)
	}

	if err := s.store.SaveResults(ctx, run.ID, records); err != nil {
		return eris.Wrap(err, "sink: save results")
	}
	zap.L().Info("run results persisted",
		zap.String("run_id", run.ID),
		zap.Int("results", len(records)))
	return nil
}
