package match

import (
	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/normalize"
)

// Kind selects the comparison rule applied to a field pair.
type Kind int

const (
	// KindAmount compares amounts exactly at cent precision.
	KindAmount Kind = iota
	// KindName compares the check remitter against the invoice resident.
	KindName
	// KindDate scores linear decay over calendar-day distance.
	KindDate
	// KindPayee compares the check payee against the invoice payee.
	KindPayee
)

// Scorer computes bounded per-field similarity scores between a check
// record and an invoice. A nil score means no evidence: the field is
// unresolved on the check or absent on the invoice, which callers must
// treat differently from a zero score.
type Scorer struct {
	dateWindowDays int
}

// NewScorer returns a Scorer with the given date decay window.
func NewScorer(dateWindowDays int) *Scorer {
	return &Scorer{dateWindowDays: dateWindowDays}
}

// Score compares one field pair and returns a score in [0,1], or nil when
// either side offers no evidence for the field.
func (s *Scorer) Score(kind Kind, check *model.CheckRecord, inv *model.InvoiceRecord) *float64 {
	switch kind {
	case KindAmount:
		return s.scoreAmount(check.Amount, inv.AmountCents)
	case KindName:
		return s.scoreOverlap(check.Remitter, inv.ResidentName)
	case KindDate:
		return s.scoreDate(check.Date, inv)
	case KindPayee:
		return s.scoreOverlap(check.Payee, inv.Payee)
	}
	return nil
}

// scoreAmount is binary: amounts either agree to the cent or they do not.
// Near-misses are not rewarded because transposed digits and misread
// decimals are the dominant extraction failure for amounts.
func (s *Scorer) scoreAmount(f model.MoneyField, invCents int64) *float64 {
	if !f.Resolved {
		return nil
	}
	if f.Cents == invCents {
		return scorePtr(1.0)
	}
	return scorePtr(0.0)
}

// scoreOverlap is Jaccard similarity over normalized word sets, so word
// order never affects the score.
func (s *Scorer) scoreOverlap(f model.Field, other string) *float64 {
	if !f.Resolved || other == "" {
		return nil
	}
	a := normalize.WordSet(f.Value)
	b := normalize.WordSet(other)

	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union < 1 {
		union = 1
	}
	return scorePtr(float64(inter) / float64(union))
}

// scoreDate decays linearly from 1.0 at zero days apart to 0.0 at the
// window boundary and beyond.
func (s *Scorer) scoreDate(f model.DateField, inv *model.InvoiceRecord) *float64 {
	if !f.Resolved || inv.Date.IsZero() {
		return nil
	}
	delta := normalize.DaysApart(f.Date, inv.Date)
	score := 1.0 - float64(delta)/float64(s.dateWindowDays)
	if score < 0 {
		score = 0
	}
	return scorePtr(score)
}

func scorePtr(v float64) *float64 {
	return &v
}
