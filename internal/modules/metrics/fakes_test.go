package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/aristath/metrics-updater/internal/domain"
)

// statusError is an HTTP-flavoured error like the provider client returns
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) HTTPStatus() int { return e.code }

type lookupResult struct {
	info domain.Info
	err  error
}

type fakeProvider struct {
	results  map[string]lookupResult
	calls    []string
	onLookup func(ticker string)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{results: make(map[string]lookupResult)}
}

func (p *fakeProvider) set(ticker string, info domain.Info) {
	p.results[ticker] = lookupResult{info: info}
}

func (p *fakeProvider) fail(ticker string, err error) {
	p.results[ticker] = lookupResult{err: err}
}

func (p *fakeProvider) Lookup(ctx context.Context, ticker string) (domain.Info, error) {
	p.calls = append(p.calls, ticker)
	if p.onLookup != nil {
		p.onLookup(ticker)
	}
	r, ok := p.results[ticker]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", ticker)
	}
	return r.info, r.err
}

type fakeStore struct {
	mu       sync.Mutex
	ranges   map[string][][]string
	readErr  error
	writeErr error
	batches  [][]domain.RangeWrite
}

func newFakeStore() *fakeStore {
	return &fakeStore{ranges: make(map[string][][]string)}
}

func (s *fakeStore) ReadRange(ctx context.Context, a1Range string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.ranges[a1Range], nil
}

func (s *fakeStore) BatchWrite(ctx context.Context, writes []domain.RangeWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.batches = append(s.batches, writes)
	return nil
}

// written flattens every write into range -> values
func (s *fakeStore) written() map[string][]interface{} {
	out := make(map[string][]interface{})
	for _, batch := range s.batches {
		for _, w := range batch {
			out[w.Range] = w.Values[0]
		}
	}
	return out
}

// validInfo returns a fully eligible US equity with every metric present
func validInfo() domain.Info {
	return domain.Info{
		"quoteType":          "EQUITY",
		"currency":           "USD",
		"financialCurrency":  "USD",
		"country":            "United States",
		"freeCashflow":       float64(5_000_000),
		"marketCap":          float64(100_000_000),
		"currentPrice":       float64(100),
		"returnOnEquity":     0.25,
		"priceToBook":        4.2,
		"currentRatio":       1.8,
		"debtToEquity":       55.0,
		"profitMargins":      0.21,
		"returnOnAssets":     0.11,
		"revenueGrowth":      0.08,
		"enterpriseToEbitda": 10.0,
		"quickRatio":         1.3,
		"trailingPegRatio":   2.5,
	}
}
