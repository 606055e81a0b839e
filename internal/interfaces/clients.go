// Package interfaces defines service contracts for Quorum
package interfaces

import (
	"context"

	"github.com/bobmcallan/quorum/internal/models"
)

// MarketDataSource is one external quote provider. Implementations enforce
// their own rate budget and fail fast with models.ErrRateLimitExceeded.
type MarketDataSource interface {
	// ID returns the stable source identifier (e.g. "finnhub")
	ID() string

	// Weight returns the configured consensus weight
	Weight() float64

	// Priority returns the tie-break rank; lower is preferred
	Priority() int

	// Supports reports whether the source can quote the symbol and metric
	Supports(symbol string, metric models.Metric) bool

	// Fetch retrieves a single metric for a symbol
	Fetch(ctx context.Context, req models.QuoteRequest) (models.Quote, error)
}

// QuoteSetSource is a MarketDataSource that answers every metric it has for
// a symbol from one upstream request. Metrics it could not read are left out
// of the map.
type QuoteSetSource interface {
	MarketDataSource

	// FetchQuotes retrieves price and previous close together
	FetchQuotes(ctx context.Context, symbol, currency string) (map[models.Metric]models.Quote, error)
}

// HistorySource provides daily OHLCV history, oldest bar first
type HistorySource interface {
	// ID returns the stable source identifier
	ID() string

	// GetHistory retrieves bars covering the timeframe (1mo, 3mo, 6mo, 1y, 2y)
	GetHistory(ctx context.Context, symbol, timeframe string) ([]models.OHLCV, error)
}

// NewsSource provides recent company news
type NewsSource interface {
	// GetCompanyNews retrieves up to limit recent articles
	GetCompanyNews(ctx context.Context, symbol string, limit int) ([]models.NewsItem, error)
}

// SocialSource provides tagged social posts
type SocialSource interface {
	// GetSocialSummary counts bullish and bearish posts
	GetSocialSummary(ctx context.Context, symbol string, limit int) (*models.SocialSummary, error)
}

// FundamentalsSource provides company financial metrics
type FundamentalsSource interface {
	// GetFundamentals retrieves valuation and quality metrics
	GetFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)
}

// AnalystSource provides analyst recommendation trends
type AnalystSource interface {
	// GetAnalystData retrieves the latest recommendation trend period
	GetAnalystData(ctx context.Context, symbol string) (*models.AnalystData, error)
}

// SentimentScorer classifies financial text
type SentimentScorer interface {
	// Score returns class probabilities for text
	Score(ctx context.Context, text string) (models.SentimentScore, error)
}

// BudgetReporter exposes a source's rate-budget counters
type BudgetReporter interface {
	ID() string
	BudgetStats() models.BudgetStats
}
