package model

// FieldScores is the per-field sub-score breakdown for one check–invoice
// pair. A nil entry means the pair had no evidence for that field (one or
// both sides unresolved) and the field was excluded from the composite
// rather than scored 0.
type FieldScores struct {
	Amount *float64 `json:"amount,omitempty"`
	Name   *float64 `json:"name,omitempty"`
	Date   *float64 `json:"date,omitempty"`
	Payee  *float64 `json:"payee,omitempty"`
}

// MatchCandidate pairs a check record with one invoice and the composite
// score computed for the pair.
type MatchCandidate struct {
	Check     *CheckRecord   `json:"-"`
	Invoice   *InvoiceRecord `json:"invoice"`
	Composite float64        `json:"composite"`
	Scores    FieldScores    `json:"scores"`
}

// MatchResult is the terminal outcome for one check record: bound to
// exactly one invoice, or unmatched.
type MatchResult struct {
	Check   *CheckRecord `json:"check"`
	Matched bool         `json:"matched"`
	// Invoice is the consumed invoice when Matched, nil otherwise.
	Invoice *InvoiceRecord `json:"invoice,omitempty"`
	// Score is the composite of the winning candidate or, when unmatched,
	// the best composite seen (0 when no candidate was viable).
	Score  float64     `json:"score"`
	Scores FieldScores `json:"scores"`
}
