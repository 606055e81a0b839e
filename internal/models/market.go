package models

import "time"

// MarketMood is the overall market-sentiment verdict
type MarketMood string

const (
	MoodBullish MarketMood = "BULLISH"
	MoodBearish MarketMood = "BEARISH"
	MoodNeutral MarketMood = "NEUTRAL"
	MoodUnknown MarketMood = "UNKNOWN"
)

// IndexSnapshot is the consensus view of one index or sector instrument
type IndexSnapshot struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	PreviousClose float64  `json:"previous_close"`
	ChangePct     float64  `json:"change_pct"`
	Confidence    float64  `json:"confidence"`
	Severity      Severity `json:"severity"`
	SourceCount   int      `json:"source_count"`
	OutlierSource string   `json:"outlier_source_id,omitempty"`
	Unavailable   bool     `json:"unavailable,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

// MarketOverview is the cached index/sector part of market sentiment
type MarketOverview struct {
	Currency       string          `json:"currency"`
	Sentiment      MarketMood      `json:"sentiment"`
	Confidence     float64         `json:"confidence"`
	MarketIndices  []IndexSnapshot `json:"market_indices"`
	TopSectors     []IndexSnapshot `json:"top_sectors"`
	Degraded       bool            `json:"degraded"`
	DegradedReason string          `json:"degraded_reason,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Cacheable reports false for a degraded overview so an outage is not
// served from cache for the full TTL
func (o *MarketOverview) Cacheable() bool {
	return !o.Degraded
}

// RecommendationItem is one entry of a buy or sell list
type RecommendationItem struct {
	Ticker         string          `json:"ticker"`
	CombinedScore  float64         `json:"combined_score"`
	Recommendation Recommendation  `json:"recommendation"`
	Price          float64         `json:"price,omitempty"`
	Signal         TechnicalSignal `json:"technical_signal,omitempty"`
}

// RecommendationList is the cached payload of one list sub-key
type RecommendationList struct {
	Side        string               `json:"side"` // "buy" or "sell"
	Currency    string               `json:"currency"`
	Items       []RecommendationItem `json:"items"`
	Failures    []TickerFailure      `json:"failures,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// MarketSentiment is the full market-sentiment response
type MarketSentiment struct {
	Currency            string               `json:"currency"`
	Sentiment           MarketMood           `json:"sentiment"`
	Confidence          float64              `json:"confidence"`
	MarketIndices       []IndexSnapshot      `json:"market_indices"`
	TopSectors          []IndexSnapshot      `json:"top_sectors"`
	BuyRecommendations  []RecommendationItem `json:"buy_recommendations"`
	SellRecommendations []RecommendationItem `json:"sell_recommendations"`
	Degraded            bool                 `json:"degraded"`
	DegradedReason      string               `json:"degraded_reason,omitempty"`
	GeneratedAt         time.Time            `json:"generated_at"`
}
