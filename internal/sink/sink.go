// Package sink publishes reconciliation outcomes: paid flags written back
// to the billing system, the review queue, the workbook report, and the run
// ledger.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/check-recon/internal/model"
)

// ResultSink consumes the outcome of one reconciliation run.
type ResultSink interface {
	// Name identifies the sink in logs and aggregated errors.
	Name() string
	// Publish writes the run's results. Implementations are expected to
	// keep going past per-record failures and report them in the returned
	// error.
	Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error
}

// Multi fans a run's results out to every configured sink. Each sink runs
// regardless of earlier failures; failures are logged and folded into one
// error.
type Multi []ResultSink

// Name implements ResultSink.
func (m Multi) Name() string { return "multi" }

// Publish sends the results to every sink in order.
func (m Multi) Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error {
	var failures []string
	for _, s := range m {
		if err := s.Publish(ctx, run, results); err != nil {
			zap.L().Error("sink: publish failed",
				zap.String("sink", s.Name()),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(failures) > 0 {
		return eris.Errorf("sink: %d of %d sinks failed: %s",
			len(failures), len(m), strings.Join(failures, "; "))
	}
	return nil
}

// usd renders grouped dollar amounts for reports and review pages.
var usd = message.NewPrinter(language.English)

// dollars formats integer cents as a dollar string, e.g. 102500 -> "$1,025.00".
func dollars(cents int64) string {
	return usd.Sprintf("$%.2f", float64(cents)/100)
}

// dateString renders a date cell, empty when the date is unknown.
func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
