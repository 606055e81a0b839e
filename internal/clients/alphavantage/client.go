// Package alphavantage provides a client for the Alpha Vantage API
package alphavantage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

const (
	SourceID          = "alphavantage"
	DefaultBaseURL    = "https://www.alphavantage.co"
	DefaultTimeout    = 5 * time.Second
	DefaultRateLimit  = 5.0 / 60.0 // 5 calls per minute
	DefaultBurst      = 5
	DefaultDailyQuota = 25
)

// Client implements MarketDataSource and HistorySource for Alpha Vantage
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	budget     *shared.Budget
	weight     float64
	priority   int
	now        func() time.Time
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

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: shared.NewHTTPClient(DefaultTimeout, 1),
		logger:     common.NewSilentLogger(),
		budget:     shared.NewBudget(SourceID, DefaultRateLimit, DefaultBurst, DefaultDailyQuota),
		weight:     1.5,
		priority:   2,
		now:        time.Now,
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

// Supports excludes indices and crypto pairs
func (c *Client) Supports(symbol string, metric models.Metric) bool {
	if metric != models.MetricPrice && metric != models.MetricPreviousClose {
		return false
	}
	if shared.IsIndex(symbol) {
		return false
	}
	if _, _, ok := shared.SplitCryptoPair(symbol); ok {
		return false
	}
	return shared.CheckSymbol(SourceID, symbol) == nil
}

// query performs a budgeted request and checks the in-band error fields
// Alpha Vantage returns with HTTP 200.
func (c *Client) query(ctx context.Context, params url.Values) (gjson.Result, error) {
	if !c.budget.Allow() {
		return gjson.Result{}, shared.RateLimited(SourceID)
	}

	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("function", params.Get("function")).Str("symbol", params.Get("symbol")).Msg("Alpha Vantage API request")

	body, err := shared.Do(c.httpClient, SourceID, req)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, models.NewSourceError(SourceID, models.ErrSourceUnavailable, errors.New("malformed response"))
	}

	doc := gjson.ParseBytes(body)
	if msg := doc.Get("Error Message"); msg.Exists() {
		return gjson.Result{}, models.NewSourceError(SourceID, models.ErrInvalidSymbol, errors.New(msg.String()))
	}
	for _, key := range []string{"Note", "Information"} {
		if msg := doc.Get(key); msg.Exists() {
			return gjson.Result{}, models.NewSourceError(SourceID, models.ErrRateLimitExceeded, errors.New(msg.String()))
		}
	}
	return doc, nil
}

// Fetch retrieves the latest price or previous close via GLOBAL_QUOTE
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

// FetchQuotes reads price and previous close from one GLOBAL_QUOTE call. A
// missing price fails the call; a missing previous close is left out.
func (c *Client) FetchQuotes(ctx context.Context, symbol, currency string) (map[models.Metric]models.Quote, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}

	doc, err := c.query(ctx, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	quote := doc.Get("Global Quote")

	parse := func(field string) (float64, error) {
		raw := quote.Get(escape(field))
		if !raw.Exists() {
			return 0, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no quote for %s", symbol))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw.String()), 64)
		if err != nil || value <= 0 {
			return 0, models.NewSourceError(SourceID, models.ErrSourceUnavailable, fmt.Errorf("bad %s value %q", field, raw.String()))
		}
		return value, nil
	}

	price, err := parse("05. price")
	if err != nil {
		return nil, err
	}

	now := c.now()
	newQuote := func(metric models.Metric, value float64) models.Quote {
		return models.Quote{
			SourceID:  SourceID,
			Symbol:    symbol,
			Metric:    metric,
			Value:     value,
			Weight:    c.weight,
			Priority:  c.priority,
			Currency:  "USD",
			FetchedAt: now,
		}
	}

	quotes := map[models.Metric]models.Quote{
		models.MetricPrice: newQuote(models.MetricPrice, price),
	}
	if prev, err := parse("08. previous close"); err == nil {
		quotes[models.MetricPreviousClose] = newQuote(models.MetricPreviousClose, prev)
	}
	return quotes, nil
}

// GetHistory retrieves daily bars within the timeframe, oldest first
func (c *Client) GetHistory(ctx context.Context, symbol, timeframe string) ([]models.OHLCV, error) {
	span, ok := models.Timeframes[timeframe]
	if !ok {
		return nil, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}

	// compact returns the latest 100 trading days, enough for 3mo
	outputSize := "compact"
	if span > models.Timeframes["3mo"] {
		outputSize = "full"
	}

	doc, err := c.query(ctx, url.Values{
		"function":   {"TIME_SERIES_DAILY"},
		"symbol":     {symbol},
		"outputsize": {outputSize},
	})
	if err != nil {
		return nil, err
	}

	series := doc.Get(escape("Time Series (Daily)"))
	if !series.Exists() {
		return nil, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no daily series for %s", symbol))
	}

	cutoff := c.now().Add(-span)
	var bars []models.OHLCV
	series.ForEach(func(key, value gjson.Result) bool {
		day, err := time.Parse("2006-01-02", key.String())
		if err != nil || day.Before(cutoff) {
			return true
		}
		bars = append(bars, models.OHLCV{
			Time:   day,
			Open:   value.Get(escape("1. open")).Float(),
			High:   value.Get(escape("2. high")).Float(),
			Low:    value.Get(escape("3. low")).Float(),
			Close:  value.Get(escape("4. close")).Float(),
			Volume: value.Get(escape("5. volume")).Float(),
		})
		return true
	})

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	c.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Alpha Vantage history loaded")
	return bars, nil
}

// escape makes Alpha Vantage's dotted field names safe as gjson paths
func escape(field string) string {
	return strings.ReplaceAll(field, ".", `\.`)
}

// Ensure Client implements the interfaces
var (
	_ interfaces.QuoteSetSource = (*Client)(nil)
	_ interfaces.HistorySource  = (*Client)(nil)
	_ interfaces.BudgetReporter = (*Client)(nil)
)
