package metrics

import (
	"time"

	"github.com/aristath/metrics-updater/internal/domain"
)

// Outcome distinguishes how a refresh cycle ended
type Outcome string

const (
	// OutcomeNoCandidates means nothing was due for refresh
	OutcomeNoCandidates Outcome = "no_candidates"
	// OutcomeCompleted means every candidate was processed
	OutcomeCompleted Outcome = "completed"
	// OutcomeRateLimited means the provider rate limited the cycle and it
	// stopped after flushing the current batch
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeFailed means a store read or write failed
	OutcomeFailed Outcome = "failed"
)

// CycleReport summarises one refresh cycle
type CycleReport struct {
	RunID             string                     `json:"run_id"`
	StartedAt         time.Time                  `json:"started_at"`
	FinishedAt        time.Time                  `json:"finished_at"`
	Outcome           Outcome                    `json:"outcome"`
	Candidates        int                        `json:"candidates"`
	Batches           int                        `json:"batches"`
	Successes         int                        `json:"successes"`
	Failures          int                        `json:"failures"`
	Blacklisted       int                        `json:"blacklisted"`
	Unprocessed       int                        `json:"unprocessed"`
	RateLimitedTicker string                     `json:"rate_limited_ticker,omitempty"`
	Error             string                     `json:"error,omitempty"`
	FailureDetails    []domain.ClassifiedFailure `json:"failure_details,omitempty"`
	BlacklistEntries  []domain.BlacklistEntry    `json:"blacklist_entries,omitempty"`
}

// Duration is the wall time of the cycle
func (r *CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *CycleReport) addBatch(batch BatchResult, entries []domain.BlacklistEntry) {
	r.Batches++
	r.Successes += len(batch.Successes)
	for _, f := range batch.Failures {
		if f.Class == domain.FailureRateLimited {
			continue
		}
		r.Failures++
		r.FailureDetails = append(r.FailureDetails, f)
	}
	r.Blacklisted += len(entries)
	r.BlacklistEntries = append(r.BlacklistEntries, entries...)
}
