package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/metrics-updater/internal/domain"
)

// State is the position of the updater in its refresh state machine:
// Idle -> Selecting -> (Fetching -> Classifying -> Writing)* -> Done | Aborted
type State string

const (
	StateIdle        State = "idle"
	StateSelecting   State = "selecting"
	StateFetching    State = "fetching"
	StateClassifying State = "classifying"
	StateWriting     State = "writing"
	StateDone        State = "done"
	StateAborted     State = "aborted"
	StateFailed      State = "failed"
)

// Refresh loop defaults
const (
	DefaultBatchSize  = 50
	DefaultBatchPause = 100 * time.Millisecond

	// interruptFlush bounds the final write after the cycle is cancelled
	interruptFlush = 30 * time.Second
)

// UpdaterConfig wires the updater's collaborators and policy
type UpdaterConfig struct {
	Store       domain.SheetStore
	Provider    domain.MarketDataProvider
	Layout      Layout
	BatchSize   int
	BatchPause  time.Duration
	MaxFailures int
	StaleAfter  time.Duration
	Log         zerolog.Logger

	// Clock and Sleep default to time.Now and time.Sleep
	Clock func() time.Time
	Sleep func(time.Duration)
}

// Updater drives refresh cycles. Tickers are fetched strictly one at a time.
type Updater struct {
	store      domain.SheetStore
	layout     Layout
	selector   *Selector
	fetcher    *Fetcher
	writer     *Writer
	batchSize  int
	batchPause time.Duration
	now        func() time.Time
	sleep      func(time.Duration)
	log        zerolog.Logger

	mu    sync.RWMutex
	state State
}

// NewUpdater creates a new updater
func NewUpdater(cfg UpdaterConfig) *Updater {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = DefaultBatchPause
	}
	if cfg.Layout == (Layout{}) {
		cfg.Layout = DefaultLayout()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return &Updater{
		store:      cfg.Store,
		layout:     cfg.Layout,
		selector:   NewSelector(cfg.MaxFailures, cfg.StaleAfter, cfg.Log),
		fetcher:    NewFetcher(cfg.Provider, cfg.Log),
		writer:     NewWriter(cfg.Store, cfg.Layout, cfg.Log),
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause,
		now:        cfg.Clock,
		sleep:      cfg.Sleep,
		log:        cfg.Log.With().Str("component", "metrics_updater").Logger(),
		state:      StateIdle,
	}
}

// State returns the current state machine position
func (u *Updater) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

func (u *Updater) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

// Candidates reads the sheet and returns the ordered work list without
// fetching anything.
func (u *Updater) Candidates(ctx context.Context) ([]domain.Candidate, error) {
	rows, err := u.store.ReadRange(ctx, u.layout.RecordsRange())
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return u.selector.SelectRows(rows, u.now()), nil
}

// RunCycle performs one full refresh cycle. A rate limit ends the cycle
// early with OutcomeRateLimited and no error. Store failures and
// cancellation return an error; results fetched before a cancellation are
// still written.
func (u *Updater) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		RunID:     uuid.NewString(),
		StartedAt: u.now(),
	}
	log := u.log.With().Str("run_id", report.RunID).Logger()

	u.setState(StateSelecting)
	candidates, err := u.Candidates(ctx)
	if err != nil {
		return u.fail(report, err), err
	}
	report.Candidates = len(candidates)

	if len(candidates) == 0 {
		log.Info().Msg("No stocks need updating")
		return u.finish(report, StateDone, OutcomeNoCandidates), nil
	}

	log.Info().
		Int("candidates", len(candidates)).
		Int("batch_size", u.batchSize).
		Msg("Starting metrics refresh")

	for start := 0; start < len(candidates); start += u.batchSize {
		end := start + u.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		batch, fetched, limited := u.fetchBatch(ctx, candidates[start:end])
		interrupted := ctx.Err()

		writeCtx := ctx
		if interrupted != nil {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), interruptFlush)
			defer cancel()
		}

		u.setState(StateWriting)
		entries, err := u.writer.Write(writeCtx, batch, u.now())
		if err != nil {
			return u.fail(report, err), err
		}
		report.addBatch(batch, entries)

		log.Info().
			Int("batch", report.Batches).
			Int("successes", len(batch.Successes)).
			Int("failures", len(batch.persistableFailures())).
			Int("blacklisted", len(entries)).
			Msg("Batch written")

		if interrupted != nil {
			report.Unprocessed = len(candidates) - (start + fetched)
			log.Warn().
				Int("unprocessed", report.Unprocessed).
				Msg("Refresh interrupted, wrote partial results")
			return u.fail(report, interrupted), interrupted
		}

		if limited != "" {
			report.RateLimitedTicker = limited
			report.Unprocessed = len(candidates) - (start + fetched)
			log.Warn().
				Str("ticker", limited).
				Int("unprocessed", report.Unprocessed).
				Msg("Rate limit reached, wrote partial results and stopping")
			return u.finish(report, StateAborted, OutcomeRateLimited), nil
		}

		if end < len(candidates) {
			u.sleep(u.batchPause)
		}
	}

	return u.finish(report, StateDone, OutcomeCompleted), nil
}

// fetchBatch fetches each candidate in order. It stops at the first rate
// limited ticker, or when ctx is done, and returns how many candidates were
// consumed before it, plus the rate limited ticker.
func (u *Updater) fetchBatch(ctx context.Context, batch []domain.Candidate) (BatchResult, int, string) {
	var result BatchResult

	for i, c := range batch {
		if ctx.Err() != nil {
			return result, i, ""
		}

		u.setState(StateFetching)
		metrics, failure := u.fetcher.Fetch(ctx, c.Ticker)
		if failure == nil {
			result.Successes = append(result.Successes, domain.SuccessfulUpdate{
				Ticker:   c.Ticker,
				RowIndex: c.RowIndex,
				Metrics:  *metrics,
			})
			continue
		}

		// the lookup was cut short, not answered
		if ctx.Err() != nil {
			return result, i, ""
		}

		u.setState(StateClassifying)
		if failure.Class == domain.FailureRateLimited {
			u.log.Warn().
				Str("ticker", c.Ticker).
				Str("error", failure.Message).
				Msg("Provider refused lookups, stopping cycle")
			return result, i, c.Ticker
		}

		u.log.Warn().
			Str("ticker", c.Ticker).
			Str("class", string(failure.Class)).
			Str("error", failure.Message).
			Msg("Failed to fetch metrics")

		result.Failures = append(result.Failures, domain.ClassifiedFailure{
			Ticker:   c.Ticker,
			RowIndex: c.RowIndex,
			Failures: c.Failures,
			Error:    failure.Message,
			Class:    failure.Class,
		})
	}

	return result, len(batch), ""
}

func (u *Updater) finish(report *CycleReport, state State, outcome Outcome) *CycleReport {
	report.Outcome = outcome
	report.FinishedAt = u.now()
	u.setState(state)

	u.log.Info().
		Str("run_id", report.RunID).
		Str("outcome", string(outcome)).
		Int("successes", report.Successes).
		Int("failures", report.Failures).
		Int("blacklisted", report.Blacklisted).
		Dur("duration_ms", report.Duration()).
		Msg("Metrics refresh finished")

	return report
}

func (u *Updater) fail(report *CycleReport, err error) *CycleReport {
	report.Outcome = OutcomeFailed
	report.Error = err.Error()
	report.FinishedAt = u.now()
	u.setState(StateFailed)

	u.log.Error().Err(err).Str("run_id", report.RunID).Msg("Metrics refresh failed")
	return report
}
