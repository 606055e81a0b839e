// Package coingecko provides a client for the CoinGecko simple price API
package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

const (
	SourceID         = "coingecko"
	DefaultBaseURL   = "https://api.coingecko.com/api/v3"
	DefaultTimeout   = 5 * time.Second
	DefaultRateLimit = 0.5 // 30 calls per minute
	DefaultBurst     = 10
)

// Client implements MarketDataSource for crypto pairs
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	budget     *shared.Budget
	weight     float64
	priority   int
	coinIDs    map[string]string
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

// WithAPIKey sets the demo API key
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
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

// NewClient creates a CoinGecko client. coinIDs maps a base symbol such as
// "BTC" to a CoinGecko coin id such as "bitcoin".
func NewClient(coinIDs map[string]string, opts ...ClientOption) *Client {
	ids := make(map[string]string, len(coinIDs))
	for sym, id := range coinIDs {
		ids[strings.ToUpper(sym)] = id
	}

	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: shared.NewHTTPClient(DefaultTimeout, 1),
		logger:     common.NewSilentLogger(),
		budget:     shared.NewBudget(SourceID, DefaultRateLimit, DefaultBurst, 0),
		weight:     1.0,
		priority:   2,
		coinIDs:    ids,
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

// resolve maps a symbol to a coin id and quote currency. "BTC-USD" uses the
// pair's quote; a bare "BTC" uses the request currency, defaulting to USD.
func (c *Client) resolve(symbol, currency string) (coinID, vs string, ok bool) {
	base, quote, pair := shared.SplitCryptoPair(symbol)
	if !pair {
		base = strings.ToUpper(symbol)
		quote = strings.ToUpper(currency)
		if quote == "" {
			quote = "USD"
		}
	}
	if quote == "USDT" {
		quote = "USD"
	}
	coinID, ok = c.coinIDs[base]
	return coinID, strings.ToLower(quote), ok
}

// Supports reports whether the symbol is a mapped coin
func (c *Client) Supports(symbol string, metric models.Metric) bool {
	if metric != models.MetricPrice && metric != models.MetricPreviousClose {
		return false
	}
	_, _, ok := c.resolve(symbol, "")
	return ok
}

// Fetch retrieves the spot price, or a previous close derived from the 24h change
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

// FetchQuotes reads the spot price and 24h change from one /simple/price
// call. The previous close is left out when the change is missing.
func (c *Client) FetchQuotes(ctx context.Context, symbol, currency string) (map[models.Metric]models.Quote, error) {
	coinID, vs, ok := c.resolve(symbol, currency)
	if !ok {
		return nil, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no coin mapping for %s", symbol))
	}
	if !c.budget.Allow() {
		return nil, shared.RateLimited(SourceID)
	}

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", vs)
	params.Set("include_24hr_change", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	c.logger.Debug().Str("coin", coinID).Str("vs", vs).Msg("CoinGecko API request")

	body, err := shared.Do(c.httpClient, SourceID, httpReq)
	if err != nil {
		return nil, err
	}

	coin := gjson.GetBytes(body, coinID)
	price := coin.Get(vs)
	if !price.Exists() || price.Float() <= 0 {
		return nil, models.NewSourceError(SourceID, models.ErrInvalidSymbol, fmt.Errorf("no %s price for %s", vs, coinID))
	}

	now := c.now()
	quote := func(metric models.Metric, value float64) models.Quote {
		return models.Quote{
			SourceID:  SourceID,
			Symbol:    symbol,
			Metric:    metric,
			Value:     value,
			Weight:    c.weight,
			Priority:  c.priority,
			Currency:  strings.ToUpper(vs),
			FetchedAt: now,
		}
	}

	quotes := map[models.Metric]models.Quote{
		models.MetricPrice: quote(models.MetricPrice, price.Float()),
	}
	if change := coin.Get(vs + "_24h_change"); change.Exists() && change.Float() > -100 {
		quotes[models.MetricPreviousClose] = quote(models.MetricPreviousClose, price.Float()/(1+change.Float()/100))
	}
	return quotes, nil
}

// Ensure Client implements the interfaces
var (
	_ interfaces.QuoteSetSource = (*Client)(nil)
	_ interfaces.BudgetReporter = (*Client)(nil)
)
