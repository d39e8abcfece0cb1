package metrics

import (
	"fmt"
	"strings"
)

// Metrics sheet columns (1-indexed letters A..R)
const (
	colTicker      = 0 // A
	colActive      = 1 // B
	colLastUpdated = 2 // C
	colLastAttempt = 3 // D
	colFailures    = 4 // E
	colError       = 5 // F
	colStatus      = 6 // G
	colFirstMetric = 7 // H

	// minColumns is the shortest row the selector accepts (A..G)
	minColumns = 7
)

// Layout addresses the metrics and blacklist sheets in A1 notation
type Layout struct {
	MetricsSheet   string
	BlacklistSheet string
}

// DefaultLayout returns the standard sheet names
func DefaultLayout() Layout {
	return Layout{
		MetricsSheet:   "Financial Metrics",
		BlacklistSheet: "Blacklist",
	}
}

// RecordsRange covers every record column, header included
func (l Layout) RecordsRange() string {
	return quoteSheet(l.MetricsSheet) + "!A:R"
}

// MetricsRow covers lastUpdated through the last metric (C:R) of one row
func (l Layout) MetricsRow(row int) string {
	return fmt.Sprintf("%s!C%d:R%d", quoteSheet(l.MetricsSheet), row, row)
}

// FailureRow covers lastAttempt through status (D:G) of one row
func (l Layout) FailureRow(row int) string {
	return fmt.Sprintf("%s!D%d:G%d", quoteSheet(l.MetricsSheet), row, row)
}

// ActiveCell is the active flag (B) of one row
func (l Layout) ActiveCell(row int) string {
	return fmt.Sprintf("%s!B%d", quoteSheet(l.MetricsSheet), row)
}

// BlacklistRange covers the whole blacklist log
func (l Layout) BlacklistRange() string {
	return quoteSheet(l.BlacklistSheet) + "!A:D"
}

// BlacklistRow covers one blacklist log row
func (l Layout) BlacklistRow(row int) string {
	return fmt.Sprintf("%s!A%d:D%d", quoteSheet(l.BlacklistSheet), row, row)
}

// quoteSheet wraps a sheet name in single quotes, escaping embedded quotes
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
