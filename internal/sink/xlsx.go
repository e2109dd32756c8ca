package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
)

// XLSXSink writes a reconciliation workbook per run: one sheet of matched
// checks, one of checks needing review, and a run summary.
type XLSXSink struct {
	dir string
}

// NewXLSXSink builds the report sink. Workbooks land in dir, one per run.
func NewXLSXSink(dir string) *XLSXSink {
	if dir == "" {
		dir = "."
	}
	return &XLSXSink{dir: dir}
}

// Name implements ResultSink.
func (s *XLSXSink) Name() string { return "xlsx" }

// Publish writes reconciliation-<run>.xlsx.
func (s *XLSXSink) Publish(ctx context.Context, run *model.Run, results []model.MatchResult) error {
	file := xlsx.NewFile()

	matched, err := writeMatchedSheet(file, results)
	if err != nil {
		return err
	}
	unmatched, err := writeUnmatchedSheet(file, results)
	if err != nil {
		return err
	}
	if err := writeSummarySheet(file, run); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create report dir %s", s.dir)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("reconciliation-%s.xlsx", run.ID))
	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}

	zap.L().Info("sink: wrote reconciliation workbook",
		zap.String("path", path),
		zap.Int("matched", matched),
		zap.Int("unmatched", unmatched))
	return nil
}

func writeMatchedSheet(file *xlsx.File, results []model.MatchResult) (int, error) {
	sheet, err := file.AddSheet("Matched")
	if err != nil {
		return 0, eris.Wrap(err, "xlsx: add matched sheet")
	}
	headerRow(sheet,
		"Check Image", "Check Number", "Remitter", "Check Amount", "Check Date",
		"Invoice Number", "Invoice Amount", "Resident", "Score")

	n := 0
	for _, res := range results {
		if !res.Matched || res.Invoice == nil {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().Value = res.Check.Source
		row.AddCell().Value = res.Check.CheckNumber.Value
		row.AddCell().Value = res.Check.Remitter.Value
		row.AddCell().Value = moneyCell(res.Check.Amount)
		row.AddCell().Value = dateString(res.Check.Date.Date)
		row.AddCell().Value = res.Invoice.InvoiceNumber
		row.AddCell().Value = dollars(res.Invoice.AmountCents)
		row.AddCell().Value = res.Invoice.ResidentName
		row.AddCell().SetFloatWithFormat(res.Score, "0.00")
		n++
	}
	return n, nil
}

func writeUnmatchedSheet(file *xlsx.File, results []model.MatchResult) (int, error) {
	sheet, err := file.AddSheet("Unmatched")
	if err != nil {
		return 0, eris.Wrap(err, "xlsx: add unmatched sheet")
	}
	headerRow(sheet,
		"Check Image", "Check Number", "Remitter", "Check Amount", "Check Date",
		"Confidence", "Best Score", "Reason")

	n := 0
	for _, res := range results {
		if res.Matched {
			continue
		}
		row := sheet.AddRow()
		row.AddCell().Value = res.Check.Source
		row.AddCell().Value = res.Check.CheckNumber.Value
		row.AddCell().Value = res.Check.Remitter.Value
		row.AddCell().Value = moneyCell(res.Check.Amount)
		row.AddCell().Value = dateString(res.Check.Date.Date)
		row.AddCell().SetFloatWithFormat(res.Check.Confidence, "0.00")
		row.AddCell().SetFloatWithFormat(res.Score, "0.00")
		row.AddCell().Value = unmatchedReason(res)
		n++
	}
	return n, nil
}

func writeSummarySheet(file *xlsx.File, run *model.Run) error {
	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}

	kvRow(sheet, "Run ID", run.ID)
	kvRow(sheet, "Status", string(run.Status))
	if sum := run.Summary; sum != nil {
		kvRow(sheet, "Checks", strconv.Itoa(sum.Checks))
		kvRow(sheet, "Matched", strconv.Itoa(sum.Matched))
		kvRow(sheet, "Unmatched", strconv.Itoa(sum.Unmatched))
		kvRow(sheet, "Failed Extractions", strconv.Itoa(sum.FailedExtractions))
		kvRow(sheet, "Matched Amount", dollars(sum.MatchedCents))
		kvRow(sheet, "Duration (ms)", strconv.FormatInt(sum.DurationMS, 10))
		for _, w := range sum.Warnings {
			kvRow(sheet, "Warning", w)
		}
	}
	return nil
}

func headerRow(sheet *xlsx.Sheet, titles ...string) {
	row := sheet.AddRow()
	for _, t := range titles {
		row.AddCell().Value = t
	}
}

func kvRow(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().Value = key
	row.AddCell().Value = value
}

func moneyCell(f model.MoneyField) string {
	if !f.Resolved {
		return ""
	}
	return dollars(f.Cents)
}

// unmatchedReason explains why a check is headed to manual review.
func unmatchedReason(res model.MatchResult) string {
	switch {
	case res.Check.ResolvedCount() == 0:
		return "no fields extracted"
	case res.Score == 0:
		return "no viable invoice candidate"
	default:
		return fmt.Sprintf("best candidate scored %.2f", res.Score)
	}
}
