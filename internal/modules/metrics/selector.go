package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/metrics-updater/internal/domain"
)

// Selection policy defaults
const (
	DefaultMaxFailures = 5
	DefaultStaleAfter  = 24 * time.Hour
)

// Selector decides which records are due for refresh
type Selector struct {
	maxFailures int
	staleAfter  time.Duration
	log         zerolog.Logger
}

// NewSelector creates a new candidate selector
func NewSelector(maxFailures int, staleAfter time.Duration, log zerolog.Logger) *Selector {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Selector{
		maxFailures: maxFailures,
		staleAfter:  staleAfter,
		log:         log.With().Str("component", "candidate_selector").Logger(),
	}
}

// SelectRows parses raw sheet rows (header first) and selects candidates
func (s *Selector) SelectRows(rows [][]string, now time.Time) []domain.Candidate {
	return s.Select(s.ParseRecords(rows), now)
}

// ParseRecords parses every data row, skipping the header and any row that
// fails to parse.
func (s *Selector) ParseRecords(rows [][]string) []domain.StockRecord {
	if len(rows) <= 1 {
		return nil
	}

	records := make([]domain.StockRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rowIndex := i + 2
		record, err := ParseRecord(row, rowIndex)
		if err != nil {
			s.log.Debug().Err(err).Int("row", rowIndex).Msg("Skipping unparseable row")
			continue
		}
		records = append(records, record)
	}
	return records
}

// Select filters due records and orders them by ascending failure count,
// keeping sheet order between equal counts.
func (s *Selector) Select(records []domain.StockRecord, now time.Time) []domain.Candidate {
	cutoff := now.Add(-s.staleAfter)

	candidates := make([]domain.Candidate, 0, len(records))
	for _, r := range records {
		if !s.isDue(r, cutoff) {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Ticker:   r.Ticker,
			RowIndex: r.RowIndex,
			Failures: r.Failures,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Failures < candidates[j].Failures
	})

	return candidates
}

func (s *Selector) isDue(r domain.StockRecord, cutoff time.Time) bool {
	if !r.Active || r.Failures >= s.maxFailures {
		return false
	}
	return r.Status == domain.StatusPending ||
		r.LastUpdated == nil ||
		r.LastUpdated.Before(cutoff)
}

// ParseRecord parses one metrics sheet row. rowIndex is the 1-based sheet row.
func ParseRecord(row []string, rowIndex int) (domain.StockRecord, error) {
	if len(row) < minColumns {
		return domain.StockRecord{}, fmt.Errorf("row has %d columns, need at least %d", len(row), minColumns)
	}

	ticker := strings.TrimSpace(row[colTicker])
	if ticker == "" {
		return domain.StockRecord{}, fmt.Errorf("empty ticker")
	}

	active, err := parseActive(row[colActive])
	if err != nil {
		return domain.StockRecord{}, err
	}

	lastUpdated, err := parseTimestamp(row[colLastUpdated])
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("invalid lastUpdated: %w", err)
	}

	// lastAttempt is informational only; a bad value does not disqualify the row
	lastAttempt, _ := parseTimestamp(row[colLastAttempt])

	failures := 0
	if v := strings.TrimSpace(row[colFailures]); v != "" {
		failures, err = strconv.Atoi(v)
		if err != nil {
			return domain.StockRecord{}, fmt.Errorf("invalid failures %q: %w", v, err)
		}
		if failures < 0 {
			return domain.StockRecord{}, fmt.Errorf("negative failures %d", failures)
		}
	}

	status := domain.RecordStatus(strings.TrimSpace(row[colStatus]))
	if status == "" {
		status = domain.StatusPending
	}

	return domain.StockRecord{
		Ticker:      ticker,
		Active:      active,
		LastUpdated: lastUpdated,
		LastAttempt: lastAttempt,
		Failures:    failures,
		Error:       row[colError],
		Status:      status,
		Metrics:     parseMetrics(row),
		RowIndex:    rowIndex,
	}, nil
}

func parseActive(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid active flag %q", v)
	}
}

func parseTimestamp(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(domain.TimestampLayout, v, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseMetrics(row []string) domain.Metrics {
	cell := func(i int) *float64 {
		idx := colFirstMetric + i
		if idx >= len(row) {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
		if err != nil {
			return nil
		}
		return &f
	}

	return domain.Metrics{
		FCFYield:      cell(0),
		ROE:           cell(1),
		PB:            cell(2),
		CurrentRatio:  cell(3),
		DebtEquity:    cell(4),
		NetMargin:     cell(5),
		ROA:           cell(6),
		RevenueGrowth: cell(7),
		EVEBITDA:      cell(8),
		QuickRatio:    cell(9),
		FairValue:     cell(10),
	}
}
