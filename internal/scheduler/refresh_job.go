package scheduler

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/aristath/metrics-updater/internal/modules/metrics"
	"github.com/aristath/metrics-updater/internal/modules/runs"
)

// ErrAlreadyRunning is returned when a refresh is requested while one is in progress
var ErrAlreadyRunning = errors.New("refresh cycle already running")

// CycleRunner runs one refresh cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (*metrics.CycleReport, error)
}

// RunRecorder persists a finished cycle
type RunRecorder interface {
	Save(report *metrics.CycleReport, trigger runs.Trigger) error
}

// RefreshJob runs metrics refresh cycles, at most one at a time
type RefreshJob struct {
	ctx     context.Context
	updater CycleRunner
	history RunRecorder // optional
	log     zerolog.Logger

	running atomic.Bool
}

// NewRefreshJob creates a refresh job. ctx bounds every cycle the job starts.
func NewRefreshJob(ctx context.Context, updater CycleRunner, history RunRecorder, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		ctx:     ctx,
		updater: updater,
		history: history,
		log:     log.With().Str("job", "metrics_refresh").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *RefreshJob) Name() string {
	return "metrics_refresh"
}

// Run executes a scheduled cycle. An overlapping run is skipped, not failed.
func (j *RefreshJob) Run() error {
	_, err := j.Trigger(j.ctx, runs.TriggerScheduled)
	if errors.Is(err, ErrAlreadyRunning) {
		j.log.Info().Msg("Refresh still running, skipping")
		return nil
	}
	return err
}

// Running reports whether a cycle is in progress
func (j *RefreshJob) Running() bool {
	return j.running.Load()
}

// Trigger runs one cycle synchronously and records it
func (j *RefreshJob) Trigger(ctx context.Context, trigger runs.Trigger) (*metrics.CycleReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	return j.run(ctx, trigger)
}

// TriggerAsync starts a cycle in the background and returns immediately
func (j *RefreshJob) TriggerAsync(trigger runs.Trigger) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	go func() {
		defer j.running.Store(false)
		if _, err := j.run(j.ctx, trigger); err != nil {
			j.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Triggered refresh failed")
		}
	}()
	return nil
}

func (j *RefreshJob) run(ctx context.Context, trigger runs.Trigger) (*metrics.CycleReport, error) {
	report, err := j.updater.RunCycle(ctx)

	if j.history != nil && report != nil {
		if saveErr := j.history.Save(report, trigger); saveErr != nil {
			j.log.Warn().Err(saveErr).Str("run_id", report.RunID).Msg("Failed to record run")
		}
	}

	return report, err
}
