// Package yfinance provides a client for the Yahoo Finance chart API
package yfinance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

const (
	SourceID         = "yfinance"
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 5 * time.Second
	DefaultRateLimit = 2.0 // requests per second
	DefaultBurst     = 5
)

// Client implements MarketDataSource and HistorySource for Yahoo Finance
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	budget     *shared.Budget
	weight     float64
	priority   int
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the transport
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBudget sets the local rate budget
func WithBudget(budget *shared.Budget) ClientOption {
	return func(c *Client) {
		c.budget = budget
	}
}

// WithWeight sets the consensus weight and priority
func WithWeight(weight float64, priority int) ClientOption {
	return func(c *Client) {
		c.weight = weight
		c.priority = priority
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: shared.NewHTTPClient(DefaultTimeout, 1),
		logger:     common.NewSilentLogger(),
		budget:     shared.NewBudget(SourceID, DefaultRateLimit, DefaultBurst, 0),
		weight:     1.0,
		priority:   3,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) ID() string                      { return SourceID }
func (c *Client) Weight() float64                 { return c.weight }
func (c *Client) Priority() int                   { return c.priority }
func (c *Client) BudgetStats() models.BudgetStats { return c.budget.Stats() }

// Supports reports true for every well-formed symbol; Yahoo quotes equities,
// indices and crypto pairs.
func (c *Client) Supports(symbol string, metric models.Metric) bool {
	if metric != models.MetricPrice && metric != models.MetricPreviousClose {
		return false
	}
	return shared.CheckSymbol(SourceID, symbol) == nil
}

// chart performs a budgeted chart request and returns the first result
func (c *Client) chart(ctx context.Context, symbol, rangeParam string) (gjson.Result, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return gjson.Result{}, err
	}
	if !c.budget.Allow() {
		return gjson.Result{}, shared.RateLimited(SourceID)
	}

	params := url.Values{}
	params.Set("range", rangeParam)
	params.Set("interval", "1d")
	path := "/v8/finance/chart/" + url.PathEscape(symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; quorum/1.0)")

	c.logger.Debug().Str("symbol", symbol).Str("range", rangeParam).Msg("Yahoo chart request")

	body, err := shared.Do(c.httpClient, SourceID, req)
	if err != nil {
		return gjson.Result{}, err
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, models.NewSourceError(SourceID, models.ErrSourceUnavailable, fmt.Errorf("malformed chart response"))
	}

	doc := gjson.ParseBytes(body)
	if code := doc.Get("chart.error.code"); code.Exists() && code.String() != "" {
		return gjson.Result{}, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("%s: %s", code.String(), doc.Get("chart.error.description").String()))
	}

	result := doc.Get("chart.result.0")
	if !result.Exists() {
		return gjson.Result{}, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no chart result for %s", symbol))
	}
	return result, nil
}

// FetchQuotes reads price and previous close from one chart request
func (c *Client) FetchQuotes(ctx context.Context, symbol, currency string) (map[models.Metric]models.Quote, error) {
	result, err := c.chart(ctx, symbol, "5d")
	if err != nil {
		return nil, err
	}

	meta := result.Get("meta")
	price := meta.Get("regularMarketPrice")
	if !price.Exists() || price.Float() <= 0 {
		return nil, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no price for %s", symbol))
	}

	now := time.Now()
	quote := func(metric models.Metric, value float64) models.Quote {
		return models.Quote{
			SourceID:  SourceID,
			Symbol:    symbol,
			Metric:    metric,
			Value:     value,
			Weight:    c.weight,
			Priority:  c.priority,
			Currency:  meta.Get("currency").String(),
			FetchedAt: now,
		}
	}

	quotes := map[models.Metric]models.Quote{
		models.MetricPrice: quote(models.MetricPrice, price.Float()),
	}
	if prev := previousClose(result); prev.Exists() && prev.Float() > 0 {
		quotes[models.MetricPreviousClose] = quote(models.MetricPreviousClose, prev.Float())
	}
	return quotes, nil
}

// Fetch retrieves the latest price or previous close
func (c *Client) Fetch(ctx context.Context, req models.QuoteRequest) (models.Quote, error) {
	if err := shared.CheckMetric(SourceID, req.Metric); err != nil {
		return models.Quote{}, err
	}
	quotes, err := c.FetchQuotes(ctx, req.Symbol, req.Currency)
	if err != nil {
		return models.Quote{}, err
	}
	return shared.PickQuote(SourceID, quotes, req)
}

// GetHistory retrieves daily bars for the timeframe, oldest first. Bars with
// a missing close are skipped.
func (c *Client) GetHistory(ctx context.Context, symbol, timeframe string) ([]models.OHLCV, error) {
	if !models.ValidTimeframe(timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	result, err := c.chart(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}

	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()

	bars := make([]models.OHLCV, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) || closes[i].Type == gjson.Null {
			continue
		}
		bars = append(bars, models.OHLCV{
			Time:   time.Unix(ts.Int(), 0).UTC(),
			Open:   at(opens, i),
			High:   at(highs, i),
			Low:    at(lows, i),
			Close:  closes[i].Float(),
			Volume: at(volumes, i),
		})
	}

	c.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Yahoo history loaded")
	return bars, nil
}

// previousClose returns the prior session's close. chartPreviousClose is the
// close before the first bar of the range, so it is not used.
func previousClose(result gjson.Result) gjson.Result {
	meta := result.Get("meta")
	if v := meta.Get("regularMarketPreviousClose"); v.Exists() && v.Float() > 0 {
		return v
	}

	closes := result.Get("indicators.quote.0.close").Array()
	seen := 0
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i].Type == gjson.Null {
			continue
		}
		seen++
		if seen == 2 {
			return closes[i]
		}
	}
	return meta.Get("previousClose")
}

func at(values []gjson.Result, i int) float64 {
	if i >= len(values) {
		return 0
	}
	return values[i].Float()
}

// Ensure Client implements the interfaces
var (
	_ interfaces.QuoteSetSource = (*Client)(nil)
	_ interfaces.HistorySource  = (*Client)(nil)
	_ interfaces.BudgetReporter = (*Client)(nil)
)
