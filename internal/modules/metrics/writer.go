package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/metrics-updater/internal/domain"
)

// BatchResult is everything collected for one batch before it is written
type BatchResult struct {
	Successes []domain.SuccessfulUpdate
	Failures  []domain.ClassifiedFailure
}

// Blacklisted returns the permanent failures of the batch
func (b BatchResult) Blacklisted() []domain.ClassifiedFailure {
	var out []domain.ClassifiedFailure
	for _, f := range b.Failures {
		if f.Blacklisted() {
			out = append(out, f)
		}
	}
	return out
}

// persistableFailures drops rate-limited failures, which never touch the record
func (b BatchResult) persistableFailures() []domain.ClassifiedFailure {
	out := make([]domain.ClassifiedFailure, 0, len(b.Failures))
	for _, f := range b.Failures {
		if f.Class != domain.FailureRateLimited {
			out = append(out, f)
		}
	}
	return out
}

// Writer converts a batch result into grouped range writes
type Writer struct {
	store  domain.SheetStore
	layout Layout
	log    zerolog.Logger
}

// NewWriter creates a new batch writer
func NewWriter(store domain.SheetStore, layout Layout, log zerolog.Logger) *Writer {
	return &Writer{
		store:  store,
		layout: layout,
		log:    log.With().Str("component", "batch_writer").Logger(),
	}
}

// Write issues up to four grouped writes: metrics, failures, active flags
// and blacklist log rows. Store errors are returned unchanged.
func (w *Writer) Write(ctx context.Context, batch BatchResult, now time.Time) ([]domain.BlacklistEntry, error) {
	ts := now.Format(domain.TimestampLayout)

	if len(batch.Successes) > 0 {
		if err := w.store.BatchWrite(ctx, w.metricsWrites(batch.Successes, ts)); err != nil {
			return nil, err
		}
		w.log.Debug().Int("rows", len(batch.Successes)).Msg("Wrote metrics")
	}

	failures := batch.persistableFailures()
	if len(failures) > 0 {
		if err := w.store.BatchWrite(ctx, w.failureWrites(failures, ts)); err != nil {
			return nil, err
		}
		w.log.Debug().Int("rows", len(failures)).Msg("Wrote failures")
	}

	blacklisted := batch.Blacklisted()
	if len(blacklisted) == 0 {
		return nil, nil
	}

	if err := w.store.BatchWrite(ctx, w.activeWrites(blacklisted)); err != nil {
		return nil, err
	}

	entries, err := w.appendBlacklist(ctx, blacklisted, now)
	if err != nil {
		return nil, err
	}

	w.log.Info().Int("count", len(entries)).Msg("Blacklisted stocks")
	return entries, nil
}

func (w *Writer) metricsWrites(successes []domain.SuccessfulUpdate, ts string) []domain.RangeWrite {
	writes := make([]domain.RangeWrite, 0, len(successes))
	for _, s := range successes {
		row := []interface{}{ts, ts, 0, "", string(domain.StatusComplete)}
		for _, v := range s.Metrics.Values() {
			row = append(row, v)
		}
		writes = append(writes, domain.RangeWrite{
			Range:  w.layout.MetricsRow(s.RowIndex),
			Values: [][]interface{}{row},
		})
	}
	return writes
}

func (w *Writer) failureWrites(failures []domain.ClassifiedFailure, ts string) []domain.RangeWrite {
	writes := make([]domain.RangeWrite, 0, len(failures))
	for _, f := range failures {
		writes = append(writes, domain.RangeWrite{
			Range: w.layout.FailureRow(f.RowIndex),
			Values: [][]interface{}{{
				ts,
				f.NextFailureCount(),
				f.Error,
				string(domain.StatusFailed),
			}},
		})
	}
	return writes
}

func (w *Writer) activeWrites(blacklisted []domain.ClassifiedFailure) []domain.RangeWrite {
	writes := make([]domain.RangeWrite, 0, len(blacklisted))
	for _, f := range blacklisted {
		writes = append(writes, domain.RangeWrite{
			Range:  w.layout.ActiveCell(f.RowIndex),
			Values: [][]interface{}{{"FALSE"}},
		})
	}
	return writes
}

// appendBlacklist writes one log row per failure after the last used row
func (w *Writer) appendBlacklist(ctx context.Context, blacklisted []domain.ClassifiedFailure, now time.Time) ([]domain.BlacklistEntry, error) {
	existing, err := w.store.ReadRange(ctx, w.layout.BlacklistRange())
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}
	nextRow := len(existing) + 1

	ts := now.Format(domain.TimestampLayout)
	entries := make([]domain.BlacklistEntry, 0, len(blacklisted))
	writes := make([]domain.RangeWrite, 0, len(blacklisted))
	for _, f := range blacklisted {
		entry := domain.BlacklistEntry{
			Ticker:        f.Ticker,
			BlacklistedAt: now,
			ErrorMessage:  f.Error,
			FailureCount:  f.Failures, // count before this failure
		}
		entries = append(entries, entry)
		writes = append(writes, domain.RangeWrite{
			Range: w.layout.BlacklistRow(nextRow),
			Values: [][]interface{}{{
				entry.Ticker,
				ts,
				entry.ErrorMessage,
				entry.FailureCount,
			}},
		})
		nextRow++
	}

	if err := w.store.BatchWrite(ctx, writes); err != nil {
		return nil, err
	}
	return entries, nil
}
