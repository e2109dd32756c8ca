package model

import "time"

// RunStatus tracks a reconciliation run through its lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one reconciliation pass recorded in the ledger.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary aggregates the outcome of one reconciliation run.
type RunSummary struct {
	Checks            int      `json:"checks"`
	Matched           int      `json:"matched"`
	Unmatched         int      `json:"unmatched"`
	FailedExtractions int      `json:"failed_extractions"`
	MatchedCents      int64    `json:"matched_cents"`
	DurationMS        int64    `json:"duration_ms"`
	Warnings          []string `json:"warnings,omitempty"`
}

// ResultRecord is the persisted outcome row for one check within a run.
type ResultRecord struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	Matched       bool      `json:"matched"`
	InvoiceID     string    `json:"invoice_id,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	Score         float64   `json:"score"`
	Confidence    float64   `json:"confidence"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
