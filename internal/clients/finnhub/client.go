// Package finnhub provides a client for the Finnhub API
package finnhub

import (
	"context"
	"encoding/json"
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
	SourceID         = "finnhub"
	DefaultBaseURL   = "https://finnhub.io/api/v1"
	DefaultTimeout   = 5 * time.Second
	DefaultRateLimit = 1.0 // 60 calls per minute
	DefaultBurst     = 30
	newsLookback     = 7 * 24 * time.Hour
)

// Client implements MarketDataSource plus the news, fundamentals and
// analyst sources for Finnhub
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

// NewClient creates a new Finnhub client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: shared.NewHTTPClient(DefaultTimeout, 1),
		logger:     common.NewSilentLogger(),
		budget:     shared.NewBudget(SourceID, DefaultRateLimit, DefaultBurst, 0),
		weight:     1.5,
		priority:   1,
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

// Supports excludes indices and crypto pairs, which the free tier does not quote
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

// get performs a budgeted GET request and returns the raw body
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !c.budget.Allow() {
		return nil, shared.RateLimited(SourceID)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("path", path).Str("symbol", params.Get("symbol")).Msg("Finnhub API request")

	return shared.Do(c.httpClient, SourceID, req)
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePct     float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
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

// FetchQuotes reads current price and previous close from one /quote call
func (c *Client) FetchQuotes(ctx context.Context, symbol, currency string) (map[models.Metric]models.Quote, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.NewSourceError(SourceID, models.ErrSourceUnavailable, fmt.Errorf("failed to decode response: %w", err))
	}

	// Unknown symbols come back as an all-zero quote
	if resp.Current == 0 && resp.Timestamp == 0 {
		return nil, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no quote for %s", symbol))
	}

	now := c.now()
	quotes := make(map[models.Metric]models.Quote, 2)
	for metric, value := range map[models.Metric]float64{
		models.MetricPrice:         resp.Current,
		models.MetricPreviousClose: resp.PreviousClose,
	} {
		if value <= 0 {
			continue
		}
		quotes[metric] = models.Quote{
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
	return quotes, nil
}

type newsResponse struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// GetCompanyNews retrieves up to limit articles from the last week
func (c *Client) GetCompanyNews(ctx context.Context, symbol string, limit int) ([]models.NewsItem, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("from", now.Add(-newsLookback).Format("2006-01-02"))
	params.Set("to", now.Format("2006-01-02"))

	body, err := c.get(ctx, "/company-news", params)
	if err != nil {
		return nil, err
	}

	var articles []newsResponse
	if err := json.Unmarshal(body, &articles); err != nil {
		return nil, models.NewSourceError(SourceID, models.ErrSourceUnavailable, fmt.Errorf("failed to decode news: %w", err))
	}

	items := make([]models.NewsItem, 0, len(articles))
	for _, a := range articles {
		if a.Headline == "" {
			continue
		}
		items = append(items, models.NewsItem{
			Headline:    a.Headline,
			Summary:     a.Summary,
			Source:      a.Source,
			URL:         a.URL,
			PublishedAt: time.Unix(a.Datetime, 0).UTC(),
		})
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	return items, nil
}

// GetFundamentals retrieves basic financials. Metrics Finnhub does not
// report for the symbol are left nil.
func (c *Client) GetFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/stock/metric", url.Values{"symbol": {symbol}, "metric": {"all"}})
	if err != nil {
		return nil, err
	}

	metric := gjson.GetBytes(body, "metric")
	pick := func(keys ...string) *float64 {
		for _, k := range keys {
			if v := metric.Get(k); v.Exists() && v.Type == gjson.Number {
				f := v.Float()
				return &f
			}
		}
		return nil
	}

	return &models.Fundamentals{
		Symbol:        symbol,
		PE:            pick("peTTM", "peBasicExclExtraTTM", "peNormalizedAnnual"),
		ROE:           pick("roeTTM", "roeRfy"),
		DebtToEquity:  pick("totalDebt/totalEquityQuarterly", "totalDebt/totalEquityAnnual"),
		RevenueGrowth: pick("revenueGrowthTTMYoy", "revenueGrowthQuarterlyYoy"),
	}, nil
}

type recommendationResponse struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// GetAnalystData returns the most recent recommendation trend, or nil when
// no analyst covers the symbol
func (c *Client) GetAnalystData(ctx context.Context, symbol string) (*models.AnalystData, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/stock/recommendation", url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var trends []recommendationResponse
	if err := json.Unmarshal(body, &trends); err != nil {
		return nil, models.NewSourceError(SourceID, models.ErrSourceUnavailable, fmt.Errorf("failed to decode recommendations: %w", err))
	}
	if len(trends) == 0 {
		return nil, nil
	}

	latest := trends[0]
	for _, t := range trends[1:] {
		if t.Period > latest.Period {
			latest = t
		}
	}

	return &models.AnalystData{
		Symbol:     symbol,
		Period:     latest.Period,
		StrongBuy:  latest.StrongBuy,
		Buy:        latest.Buy,
		Hold:       latest.Hold,
		Sell:       latest.Sell,
		StrongSell: latest.StrongSell,
	}, nil
}

// Ensure Client implements the interfaces
var (
	_ interfaces.QuoteSetSource     = (*Client)(nil)
	_ interfaces.NewsSource         = (*Client)(nil)
	_ interfaces.FundamentalsSource = (*Client)(nil)
	_ interfaces.AnalystSource      = (*Client)(nil)
	_ interfaces.BudgetReporter     = (*Client)(nil)
)
