package models

import "time"

// NewsItem is one article about a ticker
type NewsItem struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Text returns the text submitted for sentiment scoring
func (n NewsItem) Text() string {
	if n.Summary == "" {
		return n.Headline
	}
	return n.Headline + ". " + n.Summary
}

// SentimentLabel is the class assigned by the sentiment model
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// SentimentScore is the model output for a single text
type SentimentScore struct {
	Label    SentimentLabel `json:"label"`
	Positive float64        `json:"positive"`
	Neutral  float64        `json:"neutral"`
	Negative float64        `json:"negative"`
}

// SentimentResult pairs an article with its score
type SentimentResult struct {
	Headline    string         `json:"headline"`
	Source      string         `json:"source"`
	URL         string         `json:"url,omitempty"`
	PublishedAt time.Time      `json:"published_at"`
	Sentiment   SentimentScore `json:"sentiment"`
}

// SocialSummary counts tagged posts from a social feed
type SocialSummary struct {
	Source   string `json:"source"`
	Messages int    `json:"messages"`
	Bullish  int    `json:"bullish"`
	Bearish  int    `json:"bearish"`
}

// Fundamentals holds the metrics used for the fundamental factor.
// Missing metrics are nil.
type Fundamentals struct {
	Symbol        string   `json:"symbol"`
	PE            *float64 `json:"pe_ratio,omitempty"`
	ROE           *float64 `json:"roe,omitempty"`            // percent
	DebtToEquity  *float64 `json:"debt_to_equity,omitempty"` // ratio
	RevenueGrowth *float64 `json:"revenue_growth,omitempty"` // percent, year over year
}

// IsEmpty reports whether no metric is present
func (f *Fundamentals) IsEmpty() bool {
	return f == nil || (f.PE == nil && f.ROE == nil && f.DebtToEquity == nil && f.RevenueGrowth == nil)
}

// AnalystData is the latest analyst recommendation trend
type AnalystData struct {
	Symbol     string `json:"symbol"`
	Period     string `json:"period"`
	StrongBuy  int    `json:"strong_buy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strong_sell"`
}

// Total returns the number of analyst opinions
func (a *AnalystData) Total() int {
	if a == nil {
		return 0
	}
	return a.StrongBuy + a.Buy + a.Hold + a.Sell + a.StrongSell
}
