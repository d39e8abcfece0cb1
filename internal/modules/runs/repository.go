package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/metrics-updater/internal/database"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
)

// ErrRunNotFound is returned by Get for an unknown run ID
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, triggered_by, outcome, started_at, finished_at, candidates, batches,
	successes, failures, blacklisted, unprocessed, rate_limited_ticker, error`

// Repository handles refresh history database operations
// Database: history.db (runs, run_events tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new runs repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Save stores a cycle report and its failure events in one transaction
func (r *Repository) Save(report *metrics.CycleReport, trigger Trigger) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("cannot save run without an ID")
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID,
			string(trigger),
			string(report.Outcome),
			report.StartedAt.Unix(),
			report.FinishedAt.Unix(),
			report.Candidates,
			report.Batches,
			report.Successes,
			report.Failures,
			report.Blacklisted,
			report.Unprocessed,
			report.RateLimitedTicker,
			report.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, f := range report.FailureDetails {
			_, err := tx.Exec(`INSERT INTO run_events (run_id, ticker, row_index, class, failures, blacklisted, error)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				report.RunID,
				f.Ticker,
				f.RowIndex,
				string(f.Class),
				f.NextFailureCount(),
				boolToInt(f.Blacklisted()),
				f.Error,
			)
			if err != nil {
				return fmt.Errorf("failed to insert run event for %s: %w", f.Ticker, err)
			}
		}

		r.log.Debug().
			Str("run_id", report.RunID).
			Int("events", len(report.FailureDetails)).
			Msg("Saved run")
		return nil
	})
}

// List returns the most recent runs, newest first, without events
func (r *Repository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Get returns a run with its events
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	events, err := r.Events(id)
	if err != nil {
		return nil, err
	}
	run.Events = events

	return &run, nil
}

// Latest returns the most recent run, or nil when there is none
func (r *Repository) Latest() (*Run, error) {
	runs, err := r.List(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return r.Get(runs[0].ID)
}

// Events returns the failure events of a run in insertion order
func (r *Repository) Events(runID string) ([]Event, error) {
	rows, err := r.db.Query(`SELECT id, run_id, ticker, row_index, class, failures, blacklisted, error
		FROM run_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var blacklisted int
		if err := rows.Scan(&e.ID, &e.RunID, &e.Ticker, &e.RowIndex, &e.Class, &e.Failures, &blacklisted, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		e.Blacklisted = blacklisted != 0
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run events: %w", err)
	}

	return events, nil
}

// DeleteOlderThan removes runs started before cutoff, with their events
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	var deleted int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM run_events WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff.Unix()); err != nil {
			return fmt.Errorf("failed to delete run events: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff.Unix())
		if err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		deleted, _ = result.RowsAffected()
		return nil
	})
	return deleted, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var trigger string
	var startedAt, finishedAt int64

	err := s.Scan(
		&run.ID,
		&trigger,
		&run.Outcome,
		&startedAt,
		&finishedAt,
		&run.Candidates,
		&run.Batches,
		&run.Successes,
		&run.Failures,
		&run.Blacklisted,
		&run.Unprocessed,
		&run.RateLimitedTicker,
		&run.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Trigger = Trigger(trigger)
	run.StartedAt = time.Unix(startedAt, 0)
	run.FinishedAt = time.Unix(finishedAt, 0)
	run.DurationMs = run.FinishedAt.Sub(run.StartedAt).Milliseconds()

	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
