package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/check-recon/internal/model"
)

func field(v string) model.Field {
	return model.Field{Value: v, Agreement: 1, Resolved: true}
}

func money(cents int64) model.MoneyField {
	return model.MoneyField{Cents: cents, Agreement: 1, Resolved: true}
}

func dateField(y int, m time.Month, d int) model.DateField {
	return model.DateField{Date: day(y, m, d), Agreement: 1, Resolved: true}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScoreAmount(t *testing.T) {
	s := NewScorer(10)

	tests := []struct {
		name   string
		check  model.MoneyField
		cents  int64
		want   *float64
	}{
		{"exact match", money(120000), 120000, ptrFloat64(1.0)},
		{"one cent off", money(120000), 120001, ptrFloat64(0.0)},
		{"dollars off", money(50000), 50100, ptrFloat64(0.0)},
		{"unresolved amount", model.MoneyField{}, 50000, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := &model.CheckRecord{Amount: tt.check}
			inv := &model.InvoiceRecord{AmountCents: tt.cents}
			got := s.Score(KindAmount, check, inv)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.0001)
		})
	}
}

func TestScoreName(t *testing.T) {
	s := NewScorer(10)

	tests := []struct {
		name     string
		remitter model.Field
		resident string
		want     *float64
	}{
		{"same words reordered", field("Kurt Elliott 413"), "Elliott Kurt", ptrFloat64(1.0)},
		{"identical", field("John Smith"), "John Smith", ptrFloat64(1.0)},
		{"case and punctuation ignored", field("SMITH, JOHN"), "john smith", ptrFloat64(1.0)},
		{"partial overlap", field("John Smith"), "John Smith Jr", ptrFloat64(2.0 / 3.0)},
		{"no overlap", field("John Smith"), "Mary Jones", ptrFloat64(0.0)},
		{"unresolved remitter", model.Field{}, "John Smith", nil},
		{"empty resident", field("John Smith"), "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := &model.CheckRecord{Remitter: tt.remitter}
			inv := &model.InvoiceRecord{ResidentName: tt.resident}
			got := s.Score(KindName, check, inv)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.0001)
		})
	}
}

func TestScoreDate(t *testing.T) {
	s := NewScorer(10)
	base := day(2024, time.March, 15)

	tests := []struct {
		name    string
		check   model.DateField
		invDate time.Time
		want    *float64
	}{
		{"same day", dateField(2024, time.March, 15), base, ptrFloat64(1.0)},
		{"five days apart", dateField(2024, time.March, 20), base, ptrFloat64(0.5)},
		{"window boundary", dateField(2024, time.March, 25), base, ptrFloat64(0.0)},
		{"beyond window clamps to zero", dateField(2024, time.April, 14), base, ptrFloat64(0.0)},
		{"direction does not matter", dateField(2024, time.March, 10), base, ptrFloat64(0.5)},
		{"unresolved date", model.DateField{}, base, nil},
		{"invoice missing date", dateField(2024, time.March, 15), time.Time{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := &model.CheckRecord{Date: tt.check}
			inv := &model.InvoiceRecord{Date: tt.invDate}
			got := s.Score(KindDate, check, inv)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.0001)
		})
	}
}

func TestScorePayee(t *testing.T) {
	s := NewScorer(10)

	check := &model.CheckRecord{Payee: field("Mapleton Senior Living")}
	inv := &model.InvoiceRecord{Payee: "Mapleton Senior Living LLC"}

	got := s.Score(KindPayee, check, inv)
	require.NotNil(t, got)
	assert.InDelta(t, 0.75, *got, 0.0001)

	got = s.Score(KindPayee, &model.CheckRecord{}, inv)
	assert.Nil(t, got)
}

func ptrFloat64(v float64) *float64 {
	return &v
}
