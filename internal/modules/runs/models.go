// Package runs keeps the history of refresh cycles in history.db.
package runs

import (
	"time"
)

// Trigger records what started a refresh cycle
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual" // CLI
	TriggerAPI       Trigger = "api"
)

// Run is one persisted refresh cycle
type Run struct {
	ID                string    `json:"id"`
	Trigger           Trigger   `json:"trigger"`
	Outcome           string    `json:"outcome"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	DurationMs        int64     `json:"duration_ms"`
	Candidates        int       `json:"candidates"`
	Batches           int       `json:"batches"`
	Successes         int       `json:"successes"`
	Failures          int       `json:"failures"`
	Blacklisted       int       `json:"blacklisted"`
	Unprocessed       int       `json:"unprocessed"`
	RateLimitedTicker string    `json:"rate_limited_ticker,omitempty"`
	Error             string    `json:"error,omitempty"`
	Events            []Event   `json:"events,omitempty"`
}

// Event is one failed ticker of a run
type Event struct {
	ID          int64  `json:"id"`
	RunID       string `json:"run_id"`
	Ticker      string `json:"ticker"`
	RowIndex    int    `json:"row_index"`
	Class       string `json:"class"`
	Failures    int    `json:"failures"` // count written to the sheet
	Blacklisted bool   `json:"blacklisted"`
	Error       string `json:"error"`
}
