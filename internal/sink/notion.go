package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/pkg/notion"
)

// NotionSink queues every unmatched check for manual review, one page per
// check image. Reruns refresh the existing page instead of duplicating it.
type NotionSink struct {
	client notion.Client
	dbID   string
}

// NewNotionSink builds the review-queue sink over an existing Notion client.
func NewNotionSink(client notion.Client, databaseID string) *NotionSink {
	return &NotionSink{client: client, dbID: databaseID}
}

// Name implements ResultSink.
func (s *NotionSink) Name() string { return "notion" }

// Publish upserts a review page for each unmatched check. A failed upsert
// is reported and the remaining checks still get queued.
func (s *NotionSink) Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error {
	var queued int
	var failures []string
	for _, res := range results {
		if res.Matched {
			continue
		}
		entry := reviewEntry(res)
		if _, err := notion.UpsertReviewPage(ctx, s.client, s.dbID, entry); err != nil {
			zap.L().Error("sink: review page upsert failed",
				zap.String("image", entry.Image),
				zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", entry.Image, err))
			continue
		}
		queued++
	}

	zap.L().Info("sink: review queue updated",
		zap.Int("queued", queued),
		zap.Int("failed", len(failures)))

	if len(failures) > 0 {
		return eris.Errorf("notion: %d review pages failed: %s",
			len(failures), strings.Join(failures, "; "))
	}
	return nil
}

func reviewEntry(res model.MatchResult) notion.ReviewEntry {
	check := res.Check
	return notion.ReviewEntry{
		Image:       check.Source,
		CheckNumber: check.CheckNumber.Value,
		Payee:       check.Payee.Value,
		Amount:      moneyCell(check.Amount),
		Date:        dateString(check.Date.Date),
		Confidence:  check.Confidence,
		BestScore:   res.Score,
		Reason:      unmatchedReason(res),
	}
}
