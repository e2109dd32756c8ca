package match

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/normalize"
)

// Engine assigns check records to outstanding invoices. Each invoice is
// claimed by at most one check per run.
type Engine struct {
	cfg    Config
	scorer *Scorer
}

// NewEngine validates cfg and returns a ready Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, scorer: NewScorer(cfg.DateWindowDays)}, nil
}

// Match produces exactly one MatchResult per check, in the same order as
// the input slice. Checks claim invoices in descending extraction
// confidence so the most reliable extractions pick first; ties keep input
// order. A check that cannot be matched never aborts the rest of the
// batch.
func (e *Engine) Match(checks []model.CheckRecord, invoices []model.InvoiceRecord) []model.MatchResult {
	order := make([]int, len(checks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return checks[order[a]].Confidence > checks[order[b]].Confidence
	})

	consumed := make([]bool, len(invoices))
	results := make([]model.MatchResult, len(checks))
	for _, idx := range order {
		results[idx] = e.matchOne(&checks[idx], invoices, consumed)
	}
	return results
}

// matchOne scores one check against every unclaimed invoice and either
// binds the best candidate or reports the check unmatched with the best
// composite seen.
func (e *Engine) matchOne(check *model.CheckRecord, invoices []model.InvoiceRecord, consumed []bool) model.MatchResult {
	result := model.MatchResult{Check: check}

	if check.ResolvedCount() == 0 {
		zap.L().Debug("match: no resolved fields, skipping scoring",
			zap.String("source", check.Source))
		return result
	}

	best := -1
	var bestCand model.MatchCandidate
	for i := range invoices {
		if consumed[i] {
			continue
		}
		cand, ok := e.candidate(check, &invoices[i])
		if !ok {
			continue
		}
		if best < 0 || e.better(check, cand, bestCand) {
			best = i
			bestCand = cand
		}
	}
	if best < 0 {
		return result
	}

	result.Score = bestCand.Composite
	result.Scores = bestCand.Scores

	if bestCand.Composite >= e.cfg.Threshold {
		result.Matched = true
		result.Invoice = bestCand.Invoice
		consumed[best] = true
		zap.L().Info("match: check bound to invoice",
			zap.String("source", check.Source),
			zap.String("invoice", bestCand.Invoice.InvoiceNumber),
			zap.Float64("score", bestCand.Composite))
	} else {
		zap.L().Info("match: best candidate below threshold",
			zap.String("source", check.Source),
			zap.Float64("score", bestCand.Composite),
			zap.Float64("threshold", e.cfg.Threshold))
	}
	return result
}

// candidate scores all four fields for one check/invoice pair and folds
// them into a composite. Fields with no evidence are excluded from both
// the weighted sum and the weight normalizer, so the composite reflects
// only what was actually compared. ok is false when nothing could be
// compared at all.
func (e *Engine) candidate(check *model.CheckRecord, inv *model.InvoiceRecord) (model.MatchCandidate, bool) {
	scores := model.FieldScores{
		Amount: e.scorer.Score(KindAmount, check, inv),
		Name:   e.scorer.Score(KindName, check, inv),
		Date:   e.scorer.Score(KindDate, check, inv),
		Payee:  e.scorer.Score(KindPayee, check, inv),
	}

	var weighted, weightSum float64
	add := func(s *float64, w float64) {
		if s == nil {
			return
		}
		weighted += *s * w
		weightSum += w
	}
	add(scores.Amount, e.cfg.AmountWeight)
	add(scores.Name, e.cfg.NameWeight)
	add(scores.Date, e.cfg.DateWeight)
	add(scores.Payee, e.cfg.PayeeWeight)

	if weightSum == 0 {
		return model.MatchCandidate{}, false
	}

	composite := weighted / weightSum
	if composite > 1 {
		composite = 1
	}
	return model.MatchCandidate{
		Check:     check,
		Invoice:   inv,
		Composite: composite,
		Scores:    scores,
	}, true
}

// better reports whether cand should displace cur as the leading
// candidate. Equal composites fall back to the smaller calendar distance
// between check date and invoice date; a full tie keeps the earlier
// invoice.
func (e *Engine) better(check *model.CheckRecord, cand, cur model.MatchCandidate) bool {
	if cand.Composite != cur.Composite {
		return cand.Composite > cur.Composite
	}
	return dateDistance(check, cand.Invoice) < dateDistance(check, cur.Invoice)
}

// dateDistance is the tie-break key. Pairs without date evidence sort
// after any pair that has it.
func dateDistance(check *model.CheckRecord, inv *model.InvoiceRecord) int {
	if !check.Date.Resolved || inv.Date.IsZero() {
		return math.MaxInt
	}
	return normalize.DaysApart(check.Date.Date, inv.Date)
}
