package domain

import "context"

// MarketDataProvider looks up the quote info for a single ticker.
// Errors may carry an HTTP status via an HTTPStatus() int method.
type MarketDataProvider interface {
	Lookup(ctx context.Context, ticker string) (Info, error)
}

// RangeWrite is one A1-addressed write of a block of cells
type RangeWrite struct {
	Range  string
	Values [][]interface{}
}

// SheetStore is the range-oriented tabular store holding the records.
// Each BatchWrite call is applied atomically; separate calls are not.
type SheetStore interface {
	ReadRange(ctx context.Context, a1Range string) ([][]string, error)
	BatchWrite(ctx context.Context, writes []RangeWrite) error
}
