// Package store persists the run ledger: one row per reconciliation run and
// one row per check outcome, on SQLite for single-host installs or Postgres
// for shared ones.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/check-recon/internal/model"
)

// ErrRunNotFound reports a run ID absent from the ledger.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the ledger interface for reconciliation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Per-check outcomes
	SaveResults(ctx context.Context, runID string, results []model.ResultRecord) error
	ListResults(ctx context.Context, runID string) ([]model.ResultRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
