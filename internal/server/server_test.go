package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/metrics-updater/internal/database"
	"github.com/aristath/metrics-updater/internal/domain"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
	"github.com/aristath/metrics-updater/internal/modules/runs"
	"github.com/aristath/metrics-updater/internal/reliability"
	"github.com/aristath/metrics-updater/internal/scheduler"
)

type fakeHistory struct {
	runs []runs.Run
	err  error
}

func (f *fakeHistory) List(limit int) ([]runs.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeHistory) Get(id string) (*runs.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			run := r
			return &run, nil
		}
	}
	return nil, runs.ErrRunNotFound
}

func (f *fakeHistory) Latest() (*runs.Run, error) {
	if len(f.runs) == 0 {
		return nil, nil
	}
	return &f.runs[0], nil
}

type fakeRefresh struct {
	err      error
	triggers []runs.Trigger
	running  bool
}

func (f *fakeRefresh) TriggerAsync(trigger runs.Trigger) error {
	if f.err != nil {
		return f.err
	}
	f.triggers = append(f.triggers, trigger)
	return nil
}

func (f *fakeRefresh) Running() bool {
	return f.running
}

type fakeUpdater struct {
	candidates []domain.Candidate
	err        error
}

func (f *fakeUpdater) Candidates(ctx context.Context) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

func (f *fakeUpdater) State() metrics.State {
	return metrics.StateIdle
}

type fakeJobs struct{}

func (fakeJobs) Jobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: "metrics_refresh", Schedule: "0 0 */6 * * *"}}
}

type fakeBackups struct {
	enabled bool
	backups []reliability.BackupInfo
}

func (f *fakeBackups) ListBackups(ctx context.Context) ([]reliability.BackupInfo, error) {
	return f.backups, nil
}

func (f *fakeBackups) UploadEnabled() bool {
	return f.enabled
}

type testEnv struct {
	server  *Server
	history *fakeHistory
	refresh *fakeRefresh
	updater *fakeUpdater
	backups *fakeBackups
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dataDir := t.TempDir()

	db, err := database.New(database.Config{
		Path: filepath.Join(dataDir, "history.db"),
		Name: database.NameHistory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := &testEnv{
		history: &fakeHistory{runs: []runs.Run{
			{ID: "run-2", Outcome: "completed", StartedAt: started.Add(time.Hour)},
			{ID: "run-1", Outcome: "rate_limited", StartedAt: started, RateLimitedTicker: "DEF",
				Events: []runs.Event{{Ticker: "ABC", Class: "permanent", Failures: 3, Blacklisted: true}}},
		}},
		refresh: &fakeRefresh{},
		updater: &fakeUpdater{candidates: []domain.Candidate{{Ticker: "AAPL", RowIndex: 2}, {Ticker: "MSFT", RowIndex: 3, Failures: 1}}},
		backups: &fakeBackups{},
	}

	env.server = New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DevMode:   true,
		DataDir:   dataDir,
		Databases: map[string]*database.DB{database.NameHistory: db},
		History:   env.history,
		Refresh:   env.refresh,
		Updater:   env.updater,
		Jobs:      fakeJobs{},
		Backups:   env.backups,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "metrics-updater", body["service"])
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, false, body["refresh_running"])
	assert.Equal(t, map[string]interface{}{"history": "ok"}, body["databases"])
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/runs?limit=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	first := body["runs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "run-2", first["id"])

	rec, body = env.do(t, http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
}

func TestListRuns_InvalidLimit(t *testing.T) {
	env := newTestEnv(t)

	for _, limit := range []string{"0", "-1", "abc", "201"} {
		rec, body := env.do(t, http.MethodGet, "/api/runs?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
		assert.Contains(t, body["error"], "limit")
	}
}

func TestListRuns_Empty(t *testing.T) {
	env := newTestEnv(t)
	env.history.runs = nil

	rec, body := env.do(t, http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, body["runs"])
}

func TestListRuns_Error(t *testing.T) {
	env := newTestEnv(t)
	env.history.err = errors.New("database is locked")

	rec, _ := env.do(t, http.MethodGet, "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRun(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/runs/run-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rate_limited", body["outcome"])
	assert.Equal(t, "DEF", body["rate_limited_ticker"])
	events := body["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "ABC", events[0].(map[string]interface{})["ticker"])

	rec, body = env.do(t, http.MethodGet, "/api/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run not found", body["error"])
}

func TestLatestRun(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/runs/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-2", body["id"])

	env.history.runs = nil
	rec, _ = env.do(t, http.MethodGet, "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRun(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/runs/trigger")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, []runs.Trigger{runs.TriggerAPI}, env.refresh.triggers)

	env.refresh.err = scheduler.ErrAlreadyRunning
	rec, body = env.do(t, http.MethodPost, "/api/runs/trigger")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "refresh cycle already running", body["error"])
}

func TestCandidates(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/candidates")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
	first := body["candidates"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "AAPL", first["ticker"])
	assert.Equal(t, float64(2), first["row_index"])

	env.updater.err = errors.New("failed to read records: quota exceeded")
	rec, body = env.do(t, http.MethodGet, "/api/candidates")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "quota exceeded")
}

func TestSystemStats(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/system/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	dbs := body["databases"].([]interface{})
	require.Len(t, dbs, 1)
	assert.Equal(t, "history", dbs[0].(map[string]interface{})["name"])
	assert.Greater(t, body["goroutines"], float64(0))
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/system/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)
	jobs := body["jobs"].([]interface{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "metrics_refresh", jobs[0].(map[string]interface{})["name"])
}

func TestBackups(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/backups")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	now := time.Now()
	env.backups.enabled = true
	env.backups.backups = []reliability.BackupInfo{
		{Filename: "older", Timestamp: now.Add(-time.Hour)},
		{Filename: "newer", Timestamp: now},
	}

	rec, body := env.do(t, http.MethodGet, "/api/backups")
	assert.Equal(t, http.StatusOK, rec.Code)
	backups := body["backups"].([]interface{})
	require.Len(t, backups, 2)
	assert.Equal(t, "newer", backups[0].(map[string]interface{})["filename"])
}
