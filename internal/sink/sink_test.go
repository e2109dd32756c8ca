package sink

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/check-recon/internal/model"
)

func runFixture() *model.Run {
	return &model.Run{
		ID:     "run-42",
		Status: model.RunStatusComplete,
		Summary: &model.RunSummary{
			Checks:       2,
			Matched:      1,
			Unmatched:    1,
			MatchedCents: 102500,
			DurationMS:   850,
			Warnings:     []string{"matched total differs from expected total by $0.50"},
		},
	}
}

func matchedResult() model.MatchResult {
	amount := 1.0
	name := 0.9
	return model.MatchResult{
		Check: &model.CheckRecord{
			Source:      "check_0001.png",
			CheckNumber: model.Field{Value: "1042", Agreement: 1, Resolved: true},
			Amount:      model.MoneyField{Cents: 102500, Agreement: 1, Resolved: true},
			Date:        model.DateField{Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Agreement: 0.8, Resolved: true},
			Remitter:    model.Field{Value: "Dixie Nespor", Agreement: 0.8, Resolved: true},
			Confidence:  0.91,
		},
		Matched: true,
		Invoice: &model.InvoiceRecord{
			RecordID:      "rec-777",
			InvoiceNumber: "INV-2024-001",
			AmountCents:   102500,
			Payee:         "Mapleton of Andover",
			ResidentName:  "Dixie Nespor",
		},
		Score:  0.93,
		Scores: model.FieldScores{Amount: &amount, Name: &name},
	}
}

func unmatchedResult() model.MatchResult {
	return model.MatchResult{
		Check: &model.CheckRecord{
			Source:     "check_0002.png",
			Amount:     model.MoneyField{Cents: 95025, Agreement: 0.6, Resolved: true},
			Confidence: 0.55,
		},
		Matched: false,
		Score:   0.41,
	}
}

type fakeSink struct {
	name  string
	err   error
	calls int
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(context.Context, *model.Run, []model.MatchResult) error {
	f.calls++
	return f.err
}

func TestMultiPublish(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	m := Multi{a, b}

	err := m.Publish(context.Background(), runFixture(), []model.MatchResult{matchedResult()})
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, "multi", m.Name())
}

func TestMultiPublish_FailureDoesNotStopOthers(t *testing.T) {
	a := &fakeSink{name: "a", err: eris.New("report dir gone")}
	b := &fakeSink{name: "b"}
	m := Multi{a, b}

	err := m.Publish(context.Background(), runFixture(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 sinks failed")
	assert.Contains(t, err.Error(), "a: ")
	assert.Equal(t, 1, b.calls, "second sink still runs after the first fails")
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$1,025.00", dollars(102500))
	assert.Equal(t, "$950.25", dollars(95025))
	assert.Equal(t, "$0.00", dollars(0))
	assert.Equal(t, "$1,234,567.89", dollars(123456789))
}

func TestDateString(t *testing.T) {
	assert.Empty(t, dateString(time.Time{}))
	assert.Equal(t, "2024-03-15", dateString(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
}
