// Package domain provides core domain models and types.
package domain

import "time"

// TimestampLayout is the layout used for every timestamp cell in the store
const TimestampLayout = "2006-01-02 15:04:05"

// Currency represents a currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
)

// ProductType represents the type of financial product/instrument
type ProductType string

const (
	// ProductTypeEquity represents individual stocks/shares
	ProductTypeEquity ProductType = "EQUITY"
	// ProductTypeETF represents Exchange Traded Funds
	ProductTypeETF ProductType = "ETF"
	// ProductTypeMutualFund represents mutual funds
	ProductTypeMutualFund ProductType = "MUTUALFUND"
	// ProductTypeIndex represents market indices (non-tradeable)
	ProductTypeIndex ProductType = "INDEX"
	// ProductTypeCrypto represents crypto currencies
	ProductTypeCrypto ProductType = "CRYPTOCURRENCY"
)

// RecordStatus is the refresh status stored in column G
type RecordStatus string

const (
	StatusPending  RecordStatus = "pending"
	StatusComplete RecordStatus = "complete"
	StatusFailed   RecordStatus = "failed"
)

// StockRecord is one row of the metrics sheet.
// Failures only grows until a successful update resets it to zero.
type StockRecord struct {
	Ticker      string
	Active      bool
	LastUpdated *time.Time
	LastAttempt *time.Time
	Failures    int
	Error       string
	Status      RecordStatus
	Metrics     Metrics
	RowIndex    int // 1-based sheet row
}

// Candidate is a record selected for refresh in the current cycle
type Candidate struct {
	Ticker   string `json:"ticker"`
	RowIndex int    `json:"row_index"`
	Failures int    `json:"failures"`
}

// BlacklistEntry is an append-only row in the blacklist sheet
type BlacklistEntry struct {
	Ticker        string    `json:"ticker"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
	ErrorMessage  string    `json:"error_message"`
	FailureCount  int       `json:"failure_count"`
}

// SuccessfulUpdate pairs a candidate row with its freshly computed metrics
type SuccessfulUpdate struct {
	Ticker   string
	RowIndex int
	Metrics  MetricsResult
}
