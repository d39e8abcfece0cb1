package domain

import "errors"

// ErrProviderUnavailable marks provider failures that are not about any one
// ticker, such as a broken session. They stop the cycle like a rate limit.
var ErrProviderUnavailable = errors.New("market data provider unavailable")

// FailureClass tells the updater what to do with a failed fetch
type FailureClass string

const (
	// FailureRateLimited aborts the cycle without penalising the record
	FailureRateLimited FailureClass = "rate_limited"
	// FailureTransient increments the failure count; the record is retried later
	FailureTransient FailureClass = "transient"
	// FailurePermanent increments the failure count, deactivates and blacklists the record
	FailurePermanent FailureClass = "permanent"
)

// FetchFailure is the failure side of a single ticker fetch
type FetchFailure struct {
	Message string
	Class   FailureClass
	Err     error
}

func (f *FetchFailure) Error() string {
	return f.Message
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// ClassifiedFailure is a failed candidate ready to be written back
type ClassifiedFailure struct {
	Ticker   string       `json:"ticker"`
	RowIndex int          `json:"row_index"`
	Failures int          `json:"failures"` // count before this failure
	Error    string       `json:"error"`
	Class    FailureClass `json:"class"`
}

// NextFailureCount is the failure count to persist for this failure
func (f ClassifiedFailure) NextFailureCount() int {
	return f.Failures + 1
}

// Blacklisted reports whether the failure deactivates the record
func (f ClassifiedFailure) Blacklisted() bool {
	return f.Class == FailurePermanent
}
