package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/check-recon/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Runs ---

func TestSQLite_CreateRun_And_GetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, fetched.ID)
	assert.Equal(t, model.RunStatusRunning, fetched.Status)
	assert.Nil(t, fetched.Summary)
	assert.Empty(t, fetched.Error)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLite_CompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	summary := &model.RunSummary{
		Checks:            10,
		Matched:           8,
		Unmatched:         1,
		FailedExtractions: 1,
		MatchedCents:      482500,
		DurationMS:        1234,
		Warnings:          []string{"matched total differs from expected total"},
	}
	err = st.CompleteRun(ctx, run.ID, summary)
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, fetched.Status)
	require.NotNil(t, fetched.Summary)
	assert.Equal(t, 10, fetched.Summary.Checks)
	assert.Equal(t, 8, fetched.Summary.Matched)
	assert.Equal(t, int64(482500), fetched.Summary.MatchedCents)
	assert.Len(t, fetched.Summary.Warnings, 1)
}

func TestSQLite_CompleteRun_NilSummary(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	err = st.CompleteRun(ctx, run.ID, nil)
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, fetched.Status)
	assert.Nil(t, fetched.Summary)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteRun(context.Background(), "nonexistent-run", &model.RunSummary{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	err = st.FailRun(ctx, run.ID, eris.New("lockbox unreachable"))
	require.NoError(t, err)

	fetched, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, fetched.Status)
	assert.Contains(t, fetched.Error, "lockbox unreachable")
}

func TestSQLite_FailRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FailRun(context.Background(), "nonexistent-run", eris.New("boom"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateRun(ctx)
	require.NoError(t, err)
	_, err = st.CreateRun(ctx)
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_ListRuns_FilterByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	err = st.CompleteRun(ctx, run.ID, &model.RunSummary{Checks: 1})
	require.NoError(t, err)

	// A second run that stays running.
	_, err = st.CreateRun(ctx)
	require.NoError(t, err)

	runs, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestSQLite_ListRuns_LimitAndOffset(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		run, err := st.CreateRun(ctx)
		require.NoError(t, err)
		ids[run.ID] = true
	}

	page1, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	// Pages must not overlap.
	for _, r := range page2 {
		assert.NotEqual(t, page1[0].ID, r.ID)
		assert.NotEqual(t, page1[1].ID, r.ID)
		assert.True(t, ids[r.ID])
	}
}

// --- Results ---

func TestSQLite_SaveResults_And_ListResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	records := []model.ResultRecord{
		{
			Source:      "check_0002.png",
			Matched:     false,
			Score:       0.41,
			Confidence:  0.6,
			Detail:      `{"reason":"best candidate scored 0.41"}`,
			AmountCents: 95025,
		},
		{
			Source:        "check_0001.png",
			Matched:       true,
			InvoiceID:     "rec-777",
			InvoiceNumber: "INV-2024-001",
			AmountCents:   102500,
			Score:         0.93,
			Confidence:    0.97,
		},
	}
	err = st.SaveResults(ctx, run.ID, records)
	require.NoError(t, err)

	fetched, err := st.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, fetched, 2)

	// Ordered by source.
	assert.Equal(t, "check_0001.png", fetched[0].Source)
	assert.True(t, fetched[0].Matched)
	assert.Equal(t, "rec-777", fetched[0].InvoiceID)
	assert.Equal(t, "INV-2024-001", fetched[0].InvoiceNumber)
	assert.Equal(t, int64(102500), fetched[0].AmountCents)
	assert.InDelta(t, 0.93, fetched[0].Score, 1e-9)
	assert.NotEmpty(t, fetched[0].ID)
	assert.Equal(t, run.ID, fetched[0].RunID)

	assert.Equal(t, "check_0002.png", fetched[1].Source)
	assert.False(t, fetched[1].Matched)
	assert.Empty(t, fetched[1].InvoiceID)
	assert.Contains(t, fetched[1].Detail, "best candidate")
}

func TestSQLite_SaveResults_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	err = st.SaveResults(ctx, run.ID, nil)
	require.NoError(t, err)

	fetched, err := st.ListResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, fetched)
}

func TestSQLite_ListResults_UnknownRun(t *testing.T) {
	st := newTestSQLiteStore(t)

	fetched, err := st.ListResults(context.Background(), "nonexistent-run")
	require.NoError(t, err)
	assert.Empty(t, fetched)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate already ran in the helper; a second call must not error.
	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
