// Package yahoo implements the market data provider on top of the Yahoo
// Finance quoteSummary and fundamentals-timeseries endpoints, using the
// go-yfinance transport and cookie/crumb session.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	yfclient "github.com/wnjoon/go-yfinance/pkg/client"

	"github.com/aristath/metrics-updater/internal/domain"
)

const defaultBaseURL = "https://query2.finance.yahoo.com"

// quoteSummaryModules are merged, in order, into one flat info map
var quoteSummaryModules = []string{
	"quoteType",
	"assetProfile",
	"summaryDetail",
	"financialData",
	"defaultKeyStatistics",
	"price",
}

// Transport performs raw GET requests. *yfclient.Client implements it.
type Transport interface {
	Get(rawURL string, params url.Values) (*yfclient.Response, error)
}

// Session adds the crumb to authenticated requests. *yfclient.AuthManager
// implements it.
type Session interface {
	AddCrumbToParams(params url.Values) (url.Values, error)
	Reset()
}

var (
	_ Transport = (*yfclient.Client)(nil)
	_ Session   = (*yfclient.AuthManager)(nil)
)

// SymbolResolver maps an ISIN to a Yahoo symbol
type SymbolResolver interface {
	Resolve(ctx context.Context, isin string) (string, error)
}

// Config holds Yahoo client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Resolver  SymbolResolver // optional
	Transport Transport      // defaults to a go-yfinance client
	Session   Session        // defaults to an AuthManager over the default transport
	Log       zerolog.Logger
}

// Client looks up quote info for one ticker at a time
type Client struct {
	transport Transport
	session   Session
	closer    func()
	baseURL   string
	resolver  SymbolResolver
	log       zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		transport: cfg.Transport,
		session:   cfg.Session,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		resolver:  cfg.Resolver,
		log:       cfg.Log.With().Str("client", "yahoo").Logger(),
	}

	if c.transport == nil {
		yc, err := yfclient.New(yfclient.WithTimeout(int(cfg.Timeout / time.Second)))
		if err != nil {
			return nil, fmt.Errorf("failed to create yahoo transport: %w", err)
		}
		c.transport = yc
		c.closer = yc.Close
		if c.session == nil {
			c.session = yfclient.NewAuthManager(yc)
		}
	}
	if c.session == nil {
		return nil, fmt.Errorf("a session is required with a custom transport")
	}

	return c, nil
}

// Close releases the default transport
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Lookup returns the flattened quote info for a ticker, including
// trailingPegRatio when Yahoo publishes one. ISINs are resolved to a
// symbol first when a resolver is configured.
func (c *Client) Lookup(ctx context.Context, ticker string) (domain.Info, error) {
	symbol := strings.TrimSpace(ticker)
	if IsISIN(symbol) && c.resolver != nil {
		resolved, err := c.resolver.Resolve(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve ISIN %s: %w", symbol, err)
		}
		symbol = resolved
	}

	info, err := c.quoteSummary(ctx, symbol)
	if err != nil {
		return nil, err
	}

	peg, err := c.trailingPegRatio(ctx, symbol)
	switch {
	case err == nil:
		if peg != nil {
			info["trailingPegRatio"] = *peg
		}
	case yfclient.IsRateLimitError(err), errors.Is(err, domain.ErrProviderUnavailable), ctx.Err() != nil:
		return nil, err
	default:
		c.log.Debug().Err(err).Str("symbol", symbol).Msg("Trailing PEG ratio unavailable")
	}

	return info, nil
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []map[string]json.RawMessage `json:"result"`
		Error  *yahooError                  `json:"error"`
	} `json:"quoteSummary"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (c *Client) quoteSummary(ctx context.Context, symbol string) (domain.Info, error) {
	body, err := c.getWithCrumb(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), url.Values{
		"modules":   {strings.Join(quoteSummaryModules, ",")},
		"formatted": {"false"},
	})
	if err != nil {
		return nil, err
	}

	var result quoteSummaryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, yfclient.WrapInvalidResponseError(fmt.Errorf("failed to parse response: %w", err))
	}

	if result.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("Yahoo Finance API error: %s", result.QuoteSummary.Error.Description)
	}
	if len(result.QuoteSummary.Result) == 0 {
		return nil, yfclient.WrapNoDataError(symbol)
	}

	return flattenModules(result.QuoteSummary.Result[0]), nil
}

// flattenModules merges every module into one map. {"raw": x} wrappers are
// unwrapped and empty objects are treated as absent. Earlier modules win.
func flattenModules(modules map[string]json.RawMessage) domain.Info {
	info := make(domain.Info)

	for _, name := range quoteSummaryModules {
		raw, ok := modules[name]
		if !ok {
			continue
		}

		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}

		for key, val := range fields {
			if _, exists := info[key]; exists {
				continue
			}
			if v, ok := unwrapValue(val); ok {
				info[key] = v
			}
		}
	}

	return info
}

func unwrapValue(val interface{}) (interface{}, bool) {
	switch v := val.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		raw, ok := v["raw"]
		if !ok || raw == nil {
			return nil, false
		}
		return raw, true
	case []interface{}:
		return nil, false
	default:
		return v, true
	}
}

type timeseriesResponse struct {
	Timeseries struct {
		Result []struct {
			TrailingPegRatio []*struct {
				AsOfDate      string `json:"asOfDate"`
				ReportedValue struct {
					Raw *float64 `json:"raw"`
				} `json:"reportedValue"`
			} `json:"trailingPegRatio"`
		} `json:"result"`
	} `json:"timeseries"`
}

// trailingPegRatio returns the most recent published trailing PEG ratio
func (c *Client) trailingPegRatio(ctx context.Context, symbol string) (*float64, error) {
	now := time.Now()
	body, err := c.getWithCrumb(ctx, "/ws/fundamentals-timeseries/v1/finance/timeseries/"+url.PathEscape(symbol), url.Values{
		"symbol":  {symbol},
		"type":    {"trailingPegRatio"},
		"period1": {strconv.FormatInt(now.AddDate(0, -6, 0).Unix(), 10)},
		"period2": {strconv.FormatInt(now.Unix(), 10)},
	})
	if err != nil {
		return nil, err
	}

	var result timeseriesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, yfclient.WrapInvalidResponseError(fmt.Errorf("failed to parse timeseries response: %w", err))
	}

	var latest *float64
	for _, r := range result.Timeseries.Result {
		for _, point := range r.TrailingPegRatio {
			if point != nil && point.ReportedValue.Raw != nil {
				latest = point.ReportedValue.Raw
			}
		}
	}
	return latest, nil
}

// getWithCrumb performs an authenticated GET. A rejected crumb resets the
// session and is retried once; a second rejection means the session itself
// is broken, not the symbol.
func (c *Client) getWithCrumb(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, err := c.getAuthenticated(ctx, path, params)
	if !isAuthRejection(err) {
		return body, err
	}

	c.log.Debug().Err(err).Msg("Yahoo session rejected, refreshing crumb")
	c.session.Reset()

	body, err = c.getAuthenticated(ctx, path, params)
	if isAuthRejection(err) {
		return nil, &SessionError{Err: err}
	}
	return body, err
}

func (c *Client) getAuthenticated(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	withCrumb, err := c.session.AddCrumbToParams(cloneParams(params))
	if err != nil {
		return nil, sessionFailure(err)
	}
	return c.get(ctx, path, withCrumb)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := c.transport.Get(c.baseURL+path, params)
	if err != nil {
		return nil, yfclient.WrapNetworkError(fmt.Errorf("failed to fetch %s: %w", path, err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newAPIError(resp.StatusCode, resp.Body)
	}
	return []byte(resp.Body), nil
}

func cloneParams(params url.Values) url.Values {
	out := make(url.Values, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

// errorMessage prefers Yahoo's own error description over the raw body
func errorMessage(status int, body string) string {
	var summary quoteSummaryResponse
	if err := json.Unmarshal([]byte(body), &summary); err == nil && summary.QuoteSummary.Error != nil {
		return summary.QuoteSummary.Error.Description
	}

	var finance struct {
		Finance struct {
			Error *yahooError `json:"error"`
		} `json:"finance"`
	}
	if err := json.Unmarshal([]byte(body), &finance); err == nil && finance.Finance.Error != nil {
		return finance.Finance.Error.Description
	}

	text := strings.TrimSpace(body)
	if text == "" || strings.HasPrefix(text, "<") {
		return http.StatusText(status)
	}
	return truncate(text, 200)
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
