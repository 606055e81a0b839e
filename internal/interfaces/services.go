package interfaces

import (
	"context"

	"github.com/bobmcallan/quorum/internal/models"
)

// AnalysisService runs the per-ticker recommendation pipeline
type AnalysisService interface {
	// Analyze processes a batch of tickers; per-ticker failures are listed in
	// the response rather than returned as an error
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error)
}

// MarketService produces cached market sentiment and buy/sell lists
type MarketService interface {
	// GetMarketSentiment returns the overview and both lists, recomputing all
	// three when refresh is set
	GetMarketSentiment(ctx context.Context, currency string, refresh bool) (*models.MarketSentiment, error)

	// RefreshBuy recomputes only the buy list
	RefreshBuy(ctx context.Context, currency string) (*models.RecommendationList, error)

	// RefreshSell recomputes only the sell list
	RefreshSell(ctx context.Context, currency string) (*models.RecommendationList, error)
}

// PriceConsensusService reconciles price and previous close across sources
type PriceConsensusService interface {
	// PriceConsensus returns the price block for a symbol; a price failure
	// is returned as an error, a missing previous close is not
	PriceConsensus(ctx context.Context, symbol, currency string) (*models.PriceConsensus, error)
}
