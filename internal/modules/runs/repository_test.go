package runs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/metrics-updater/internal/database"
	"github.com/aristath/metrics-updater/internal/domain"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "history.db"),
		Profile: database.ProfileHistory,
		Name:    database.NameHistory,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn(), zerolog.Nop())
}

func report(id string, started time.Time, outcome metrics.Outcome) *metrics.CycleReport {
	return &metrics.CycleReport{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Outcome:    outcome,
	}
}

func TestSaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	r := report("run-1", started, metrics.OutcomeRateLimited)
	r.Candidates = 4
	r.Batches = 1
	r.Successes = 1
	r.Failures = 2
	r.Blacklisted = 1
	r.Unprocessed = 1
	r.RateLimitedTicker = "DEF"
	r.FailureDetails = []domain.ClassifiedFailure{
		{Ticker: "ABC", RowIndex: 3, Failures: 2, Error: "Company not based in US: Canada", Class: domain.FailurePermanent},
		{Ticker: "GHI", RowIndex: 5, Failures: 0, Error: "Yahoo Finance API returned status 503", Class: domain.FailureTransient},
	}

	require.NoError(t, repo.Save(r, TriggerScheduled))

	run, err := repo.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, TriggerScheduled, run.Trigger)
	assert.Equal(t, "rate_limited", run.Outcome)
	assert.True(t, started.Equal(run.StartedAt))
	assert.Equal(t, int64(3000), run.DurationMs)
	assert.Equal(t, 4, run.Candidates)
	assert.Equal(t, 1, run.Unprocessed)
	assert.Equal(t, "DEF", run.RateLimitedTicker)

	require.Len(t, run.Events, 2)
	assert.Equal(t, "ABC", run.Events[0].Ticker)
	assert.Equal(t, 3, run.Events[0].Failures)
	assert.True(t, run.Events[0].Blacklisted)
	assert.Equal(t, "permanent", run.Events[0].Class)
	assert.Equal(t, "GHI", run.Events[1].Ticker)
	assert.Equal(t, 1, run.Events[1].Failures)
	assert.False(t, run.Events[1].Blacklisted)
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSave_RequiresID(t *testing.T) {
	repo := newTestRepository(t)
	assert.Error(t, repo.Save(&metrics.CycleReport{}, TriggerManual))
	assert.Error(t, repo.Save(nil, TriggerManual))
}

func TestSave_DuplicateIDRollsBack(t *testing.T) {
	repo := newTestRepository(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(report("run-1", started, metrics.OutcomeCompleted), TriggerManual))

	dup := report("run-1", started, metrics.OutcomeFailed)
	dup.FailureDetails = []domain.ClassifiedFailure{{Ticker: "X", Class: domain.FailureTransient}}
	assert.Error(t, repo.Save(dup, TriggerManual))

	events, err := repo.Events("run-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListAndLatest(t *testing.T) {
	repo := newTestRepository(t)

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(report(id, base.Add(time.Duration(i)*time.Hour), metrics.OutcomeCompleted), TriggerScheduled))
	}

	runs, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := repo.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err = repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c", latest.ID)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	old := report("old", base, metrics.OutcomeCompleted)
	old.FailureDetails = []domain.ClassifiedFailure{{Ticker: "X", Class: domain.FailureTransient}}
	require.NoError(t, repo.Save(old, TriggerScheduled))
	require.NoError(t, repo.Save(report("new", base.AddDate(0, 0, 10), metrics.OutcomeCompleted), TriggerScheduled))

	deleted, err := repo.DeleteOlderThan(base.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.Get("old")
	assert.ErrorIs(t, err, ErrRunNotFound)

	events, err := repo.Events("old")
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = repo.Get("new")
	assert.NoError(t, err)
}
