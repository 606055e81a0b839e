// Package stocktwits provides a client for the StockTwits symbol stream
package stocktwits

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

const (
	SourceID         = "stocktwits"
	DefaultBaseURL   = "https://api.stocktwits.com/api/2"
	DefaultTimeout   = 5 * time.Second
	DefaultRateLimit = 3.0
	DefaultBurst     = 10
)

// Client implements SocialSource for StockTwits
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	budget     *shared.Budget
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

// NewClient creates a new StockTwits client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: shared.NewHTTPClient(DefaultTimeout, 1),
		logger:     common.NewSilentLogger(),
		budget:     shared.NewBudget(SourceID, DefaultRateLimit, DefaultBurst, 0),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) ID() string                      { return SourceID }
func (c *Client) BudgetStats() models.BudgetStats { return c.budget.Stats() }

type streamResponse struct {
	Messages []struct {
		Entities struct {
			Sentiment *struct {
				Basic string `json:"basic"`
			} `json:"sentiment"`
		} `json:"entities"`
	} `json:"messages"`
}

// GetSocialSummary counts bullish and bearish tags over the latest messages
func (c *Client) GetSocialSummary(ctx context.Context, symbol string, limit int) (*models.SocialSummary, error) {
	if err := shared.CheckSymbol(SourceID, symbol); err != nil {
		return nil, err
	}
	if !c.budget.Allow() {
		return nil, shared.RateLimited(SourceID)
	}

	path := "/streams/symbol/" + url.PathEscape(symbol) + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("symbol", symbol).Msg("StockTwits stream request")

	body, err := shared.Do(c.httpClient, SourceID, req)
	if err != nil {
		return nil, err
	}

	var resp streamResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.NewSourceError(SourceID, models.ErrSourceUnavailable, fmt.Errorf("failed to decode stream: %w", err))
	}

	summary := &models.SocialSummary{Source: SourceID}
	for i, m := range resp.Messages {
		if limit > 0 && i >= limit {
			break
		}
		summary.Messages++
		if m.Entities.Sentiment == nil {
			continue
		}
		switch m.Entities.Sentiment.Basic {
		case "Bullish":
			summary.Bullish++
		case "Bearish":
			summary.Bearish++
		}
	}

	return summary, nil
}

// Ensure Client implements SocialSource
var (
	_ interfaces.SocialSource   = (*Client)(nil)
	_ interfaces.BudgetReporter = (*Client)(nil)
)
