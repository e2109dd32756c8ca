package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/pipeline"
	"github.com/sells-group/check-recon/internal/store"
)

// fakeServeStore backs the router tests without a database.
type fakeServeStore struct {
	createErr error
	runs      map[string]*model.Run
	results   map[string][]model.ResultRecord
}

func newFakeServeStore() *fakeServeStore {
	return &fakeServeStore{
		runs:    make(map[string]*model.Run),
		results: make(map[string][]model.ResultRecord),
	}
}

func (f *fakeServeStore) CreateRun(context.Context) (*model.Run, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	run := &model.Run{
		ID:        "run-serve-1",
		Status:    model.RunStatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeServeStore) CompleteRun(_ context.Context, runID string, summary *model.RunSummary) error {
	if run, ok := f.runs[runID]; ok {
		run.Status = model.RunStatusComplete
		run.Summary = summary
	}
	return nil
}

func (f *fakeServeStore) FailRun(_ context.Context, runID string, cause error) error {
	if run, ok := f.runs[runID]; ok {
		run.Status = model.RunStatusFailed
		run.Error = cause.Error()
	}
	return nil
}

func (f *fakeServeStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeServeStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	out := make([]model.Run, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (f *fakeServeStore) SaveResults(_ context.Context, runID string, results []model.ResultRecord) error {
	f.results[runID] = append(f.results[runID], results...)
	return nil
}

func (f *fakeServeStore) ListResults(_ context.Context, runID string) ([]model.ResultRecord, error) {
	return f.results[runID], nil
}

func (f *fakeServeStore) Migrate(context.Context) error { return nil }
func (f *fakeServeStore) Close() error                  { return nil }

// capturedLaunch records webhook launches instead of running the pipeline.
type capturedLaunch struct {
	runID string
	opts  pipeline.Options
	calls int
}

func (c *capturedLaunch) fn(runID string, opts pipeline.Options) {
	c.runID = runID
	c.opts = opts
	c.calls++
}

func newTestRouter(st store.Store, launch *capturedLaunch, hasDefaultIntake bool) http.Handler {
	return newRouter(st, launch.fn, []string{"*"}, hasDefaultIntake)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(newFakeServeStore(), &capturedLaunch{}, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestWebhookReconcile_Accepted(t *testing.T) {
	launch := &capturedLaunch{}
	router := newTestRouter(newFakeServeStore(), launch, false)

	payload := map[string]string{
		"images_dir":     "/mnt/lockbox/scans",
		"expected_total": "12,345.67",
	}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, "run-serve-1", resp["run_id"])

	assert.Equal(t, 1, launch.calls)
	assert.Equal(t, "run-serve-1", launch.runID)
	assert.Equal(t, "/mnt/lockbox/scans", launch.opts.Dir)
	assert.Equal(t, int64(1234567), launch.opts.ExpectedTotalCents)
}

func TestWebhookReconcile_FTPSource(t *testing.T) {
	launch := &capturedLaunch{}
	router := newTestRouter(newFakeServeStore(), launch, false)

	body, _ := json.Marshal(map[string]string{"ftp_url": "ftp://user:pw@lockbox.example.com/drops"})

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "ftp://user:pw@lockbox.example.com/drops", launch.opts.FTPURL)
	assert.Zero(t, launch.opts.ExpectedTotalCents)
}

func TestWebhookReconcile_InvalidJSON(t *testing.T) {
	launch := &capturedLaunch{}
	router := newTestRouter(newFakeServeStore(), launch, true)

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
	assert.Zero(t, launch.calls)
}

func TestWebhookReconcile_NoIntake(t *testing.T) {
	launch := &capturedLaunch{}
	router := newTestRouter(newFakeServeStore(), launch, false)

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "images_dir or ftp_url is required")
	assert.Zero(t, launch.calls)
}

func TestWebhookReconcile_ConfiguredIntakeAllowsEmptyBody(t *testing.T) {
	launch := &capturedLaunch{}
	router := newTestRouter(newFakeServeStore(), launch, true)

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, launch.calls)
	assert.Empty(t, launch.opts.Dir)
	assert.Empty(t, launch.opts.FTPURL)
}

func TestWebhookReconcile_BadExpectedTotal(t *testing.T) {
	launch := &capturedLaunch{}
	router := newTestRouter(newFakeServeStore(), launch, true)

	body, _ := json.Marshal(map[string]string{"expected_total": "a lot"})

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid expected_total")
	assert.Zero(t, launch.calls)
}

func TestWebhookReconcile_CreateRunError(t *testing.T) {
	st := newFakeServeStore()
	st.createErr = eris.New("sqlite: database is locked")
	launch := &capturedLaunch{}
	router := newTestRouter(st, launch, true)

	req := httptest.NewRequest(http.MethodPost, "/webhook/reconcile", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Zero(t, launch.calls)
}

func TestRunsEndpoint_List(t *testing.T) {
	st := newFakeServeStore()
	st.runs["run-1"] = &model.Run{ID: "run-1", Status: model.RunStatusComplete}
	router := newTestRouter(st, &capturedLaunch{}, true)

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=10", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestRunsEndpoint_Show(t *testing.T) {
	st := newFakeServeStore()
	st.runs["run-1"] = &model.Run{
		ID:      "run-1",
		Status:  model.RunStatusComplete,
		Summary: &model.RunSummary{Checks: 3, Matched: 2},
	}
	st.results["run-1"] = []model.ResultRecord{
		{ID: "res-1", RunID: "run-1", Source: "check_0001.png", Matched: true},
	}
	router := newTestRouter(st, &capturedLaunch{}, true)

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var detail runDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "run-1", detail.Run.ID)
	require.NotNil(t, detail.Run.Summary)
	assert.Equal(t, 3, detail.Run.Summary.Checks)
	require.Len(t, detail.Results, 1)
	assert.Equal(t, "check_0001.png", detail.Results[0].Source)
}

func TestRunsEndpoint_ShowNotFound(t *testing.T) {
	router := newTestRouter(newFakeServeStore(), &capturedLaunch{}, true)

	req := httptest.NewRequest(http.MethodGet, "/runs/nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "run not found")
}

func TestRouter_CORSHeaders(t *testing.T) {
	router := newTestRouter(newFakeServeStore(), &capturedLaunch{}, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
