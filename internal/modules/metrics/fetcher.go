package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/metrics-updater/internal/domain"
)

// Fair value model parameters
const (
	TargetEVEBITDA = 15.0
	TargetPEG      = 2.0
	EVEBITDAWeight = 0.6
	PEGWeight      = 0.4
)

// usCountries are the issuer countries accepted as US-based
var usCountries = map[string]bool{
	"US":            true,
	"USA":           true,
	"United States": true,
}

// priceKeys are tried in order; the first present non-zero value is the price
var priceKeys = []string{
	"currentPrice",
	"regularMarketPrice",
	"previousClose",
	"open",
	"fiftyDayAverage",
}

// Fetcher turns a provider lookup into a complete metrics result or a
// classified failure.
type Fetcher struct {
	provider domain.MarketDataProvider
	log      zerolog.Logger
}

// NewFetcher creates a new metrics fetcher
func NewFetcher(provider domain.MarketDataProvider, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		provider: provider,
		log:      log.With().Str("component", "metrics_fetcher").Logger(),
	}
}

// Fetch looks up one ticker. Exactly one of the return values is non-nil.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) (*domain.MetricsResult, *domain.FetchFailure) {
	info, err := f.provider.Lookup(ctx, ticker)
	if err != nil {
		failure := &domain.FetchFailure{
			Message: err.Error(),
			Class:   classifyProviderError(err),
			Err:     err,
		}
		f.log.Debug().
			Err(err).
			Str("ticker", ticker).
			Str("class", string(failure.Class)).
			Msg("Provider lookup failed")
		return nil, failure
	}

	if err := ValidateEligibility(info); err != nil {
		return nil, newValidationFailure(err)
	}

	metrics := ComputeMetrics(info)
	result, ok := metrics.Complete()
	if !ok {
		err := fmt.Errorf("Missing required metrics: %s", strings.Join(metrics.Missing(), ", "))
		return nil, newValidationFailure(err)
	}

	return &result, nil
}

// classifyProviderError keeps 429s and session failures rate limited and lets status-bearing
// errors follow the classifier. Errors without a status (network, decode,
// schema) are transient.
func classifyProviderError(err error) domain.FailureClass {
	class := Classify(err)
	if class == domain.FailureRateLimited {
		return class
	}
	if _, ok := StatusCode(err); !ok {
		return domain.FailureTransient
	}
	return class
}

func newValidationFailure(err error) *domain.FetchFailure {
	return &domain.FetchFailure{
		Message: err.Error(),
		Class:   Classify(err),
		Err:     err,
	}
}

// ValidateEligibility checks, in order, security type, trading currency,
// reporting currency and issuer country.
func ValidateEligibility(info domain.Info) error {
	if quoteType := info.String("quoteType"); quoteType != string(domain.ProductTypeEquity) {
		return fmt.Errorf("Not an equity security. Quote type: %s", displayValue(info, "quoteType"))
	}

	if currency := info.String("currency"); currency != string(domain.CurrencyUSD) {
		return fmt.Errorf("Trading currency is not USD: %s", displayValue(info, "currency"))
	}

	if info.Has("financialCurrency") && info.String("financialCurrency") != string(domain.CurrencyUSD) {
		return fmt.Errorf("Financial reporting currency is not USD: %s", displayValue(info, "financialCurrency"))
	}

	if !usCountries[info.String("country")] {
		return fmt.Errorf("Company not based in US: %s", displayValue(info, "country"))
	}

	return nil
}

func displayValue(info domain.Info, key string) string {
	val, ok := info[key]
	if !ok || val == nil {
		return "None"
	}
	return fmt.Sprint(val)
}

// ComputeMetrics derives the eleven metrics from a provider info map.
// Fields the provider omits stay nil.
func ComputeMetrics(info domain.Info) domain.Metrics {
	m := domain.Metrics{
		FCFYield:      FCFYield(info.Float("freeCashflow"), info.Float("marketCap")),
		ROE:           info.Float("returnOnEquity"),
		PB:            info.Float("priceToBook"),
		CurrentRatio:  info.Float("currentRatio"),
		DebtEquity:    info.Float("debtToEquity"),
		NetMargin:     info.Float("profitMargins"),
		ROA:           info.Float("returnOnAssets"),
		RevenueGrowth: info.Float("revenueGrowth"),
		EVEBITDA:      info.Float("enterpriseToEbitda"),
		QuickRatio:    info.Float("quickRatio"),
	}
	m.FairValue = FairValue(Price(info), m.EVEBITDA, info.Float("trailingPegRatio"))
	return m
}

// FCFYield is free cash flow over market cap, nil when either is missing
// or market cap is zero.
func FCFYield(freeCashflow, marketCap *float64) *float64 {
	if freeCashflow == nil || marketCap == nil || *marketCap == 0 {
		return nil
	}
	v := *freeCashflow / *marketCap
	return &v
}

// Price returns the first present, non-zero price field
func Price(info domain.Info) *float64 {
	for _, key := range priceKeys {
		if p := info.Float(key); p != nil && *p != 0 {
			return p
		}
	}
	return nil
}

// FairValue blends an EV/EBITDA implied price with a PEG implied price.
// Without a usable PEG the EV/EBITDA implied price is returned as is.
func FairValue(price, evEBITDA, peg *float64) *float64 {
	if price == nil || evEBITDA == nil || *price == 0 || *evEBITDA == 0 {
		return nil
	}

	evImplied := *price * (TargetEVEBITDA / *evEBITDA)
	if peg == nil || *peg == 0 {
		return &evImplied
	}

	pegImplied := *price * (TargetPEG / *peg)
	v := EVEBITDAWeight*evImplied + PEGWeight*pegImplied
	return &v
}
