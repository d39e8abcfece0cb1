package yahoo

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/lookup"

	"github.com/aristath/metrics-updater/internal/clientdata"
)

// isinPattern matches ISIN format: 2 letter country code + 9 alphanumeric + 1 check digit
var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// IsISIN checks if the identifier is in ISIN format
func IsISIN(identifier string) bool {
	return isinPattern.MatchString(identifier)
}

// isinMapping is the cached resolution of one ISIN
type isinMapping struct {
	Symbol     string    `msgpack:"symbol"`
	ResolvedAt time.Time `msgpack:"resolved_at"`
}

// ISINResolver resolves ISINs to Yahoo symbols through the Yahoo lookup API,
// caching results in client_data.db.
type ISINResolver struct {
	cache  *clientdata.Repository
	lookup func(isin string) (string, error)
	log    zerolog.Logger
}

// NewISINResolver creates a resolver. cache may be nil.
func NewISINResolver(cache *clientdata.Repository, log zerolog.Logger) *ISINResolver {
	return &ISINResolver{
		cache:  cache,
		lookup: lookupISIN,
		log:    log.With().Str("client", "yahoo_isin").Logger(),
	}
}

// Resolve returns the Yahoo symbol for an ISIN. A fresh cache entry is used
// when available; a stale one is used when the lookup fails.
func (r *ISINResolver) Resolve(ctx context.Context, isin string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var cached isinMapping
	state := clientdata.Missing
	if r.cache != nil {
		var err error
		state, err = r.cache.Lookup(clientdata.ISINLookups, isin, &cached)
		if err != nil {
			r.log.Warn().Err(err).Str("isin", isin).Msg("Failed to read ISIN cache")
		}
		if cached.Symbol == "" {
			state = clientdata.Missing
		}
		if state == clientdata.Fresh {
			return cached.Symbol, nil
		}
	}

	symbol, err := r.lookup(isin)
	if err != nil {
		if state == clientdata.Stale {
			r.log.Warn().Err(err).Str("isin", isin).Str("symbol", cached.Symbol).Msg("ISIN lookup failed, using stale cache")
			return cached.Symbol, nil
		}
		return "", err
	}

	if r.cache != nil {
		entry := isinMapping{Symbol: symbol, ResolvedAt: time.Now()}
		if err := r.cache.Put(clientdata.ISINLookups, isin, entry); err != nil {
			r.log.Warn().Err(err).Str("isin", isin).Msg("Failed to cache ISIN mapping")
		}
	}

	r.log.Debug().Str("isin", isin).Str("symbol", symbol).Msg("Resolved ISIN")
	return symbol, nil
}

// lookupISIN queries the Yahoo lookup API for the equity listed under an ISIN
func lookupISIN(isin string) (string, error) {
	lookupClient, err := lookup.New(isin)
	if err != nil {
		return "", fmt.Errorf("failed to create lookup client: %w", err)
	}
	defer lookupClient.Close()

	// Get stock results (filters for equity)
	results, err := lookupClient.Stock(1)
	if err != nil {
		return "", fmt.Errorf("failed to lookup ISIN: %w", err)
	}

	if len(results) == 0 {
		return "", fmt.Errorf("no ticker found for ISIN: %s", isin)
	}

	return results[0].Symbol, nil
}
