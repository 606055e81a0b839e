package models

import "time"

// AnalysisRequest asks for a recommendation for up to ten tickers
type AnalysisRequest struct {
	Tickers   []string `json:"tickers" validate:"required,min=1,max=10,dive,required,max=20"`
	Timeframe string   `json:"timeframe" validate:"omitempty,oneof=1mo 3mo 6mo 1y 2y"`
	Currency  string   `json:"currency" validate:"omitempty,len=3,alpha"`
	ChartType string   `json:"chart_type" validate:"omitempty,oneof=line candlestick ohlc area"`
}

// TickerAnalysis is the full result for one ticker
type TickerAnalysis struct {
	Ticker           string             `json:"ticker"`
	CombinedScore    float64            `json:"combined_score"`
	Recommendation   Recommendation     `json:"recommendation"`
	Score            *CombinedScore     `json:"score"`
	FactorScores     FactorScores       `json:"factor_scores"`
	Technical        *TechnicalSnapshot `json:"technical"`
	Price            *PriceConsensus    `json:"price"`
	SentimentResults []SentimentResult  `json:"sentiment_results"`
	Social           *SocialSummary     `json:"social,omitempty"`
	AnalystData      *AnalystData       `json:"analyst_data,omitempty"`
	Fundamentals     *Fundamentals      `json:"fundamentals,omitempty"`
	Notes            []string           `json:"notes,omitempty"`
	AnalyzedAt       time.Time          `json:"analyzed_at"`
}

// TickerFailure reports a ticker that could not be processed
type TickerFailure struct {
	Ticker string `json:"ticker"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// AnalysisResponse is always partial or full success; failures are listed,
// never dropped.
type AnalysisResponse struct {
	RequestID   string           `json:"request_id"`
	Timeframe   string           `json:"timeframe"`
	Currency    string           `json:"currency"`
	ChartType   string           `json:"chart_type,omitempty"`
	Results     []TickerAnalysis `json:"results"`
	Failures    []TickerFailure  `json:"failures"`
	GeneratedAt time.Time        `json:"generated_at"`
}
