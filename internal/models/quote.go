// Package models defines data structures for Quorum
package models

import "time"

// Metric identifies what a quote measures
type Metric string

const (
	MetricPrice         Metric = "price"
	MetricPreviousClose Metric = "previous_close"
)

// QuoteRequest asks a source for one metric of one symbol
type QuoteRequest struct {
	Symbol   string `json:"symbol"`
	Metric   Metric `json:"metric"`
	Currency string `json:"currency,omitempty"`
}

// Quote is a single provider reading, owned by one aggregation call
type Quote struct {
	SourceID  string    `json:"source_id"`
	Symbol    string    `json:"symbol"`
	Metric    Metric    `json:"metric_id"`
	Value     float64   `json:"value"`
	Weight    float64   `json:"weight"`
	Priority  int       `json:"priority"`
	Currency  string    `json:"currency,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Severity classifies the disagreement between sources
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ConsensusResult is the reconciled reading for one metric
type ConsensusResult struct {
	Symbol             string             `json:"symbol"`
	Metric             Metric             `json:"metric_id"`
	ConsensusValue     float64            `json:"consensus_value"`
	ContributingQuotes []Quote            `json:"contributing_quotes"`
	ExcludedQuotes     []Quote            `json:"excluded_quotes,omitempty"`
	DiscrepancyPct     float64            `json:"discrepancy_pct"`
	Deviations         map[string]float64 `json:"deviations"`
	Severity           Severity           `json:"severity"`
	OutlierSourceID    string             `json:"outlier_source_id,omitempty"`
	Confidence         float64            `json:"confidence"`
	SourceCount        int                `json:"source_count"`
	BandsVersion       string             `json:"bands_version,omitempty"`
}

// SourceFailure reports a source that contributed nothing to a consensus
type SourceFailure struct {
	Source string `json:"source"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// PriceConsensus pairs the price and previous-close consensus for a symbol
type PriceConsensus struct {
	Price         *ConsensusResult `json:"price"`
	PreviousClose *ConsensusResult `json:"previous_close,omitempty"`
	ChangePct     *float64         `json:"change_pct,omitempty"`
	Failures      []SourceFailure  `json:"source_failures,omitempty"`
}

// BudgetStats is a snapshot of one source's rate-budget counters
type BudgetStats struct {
	Source     string `json:"source"`
	Allowed    int64  `json:"allowed"`
	Rejected   int64  `json:"rejected"`
	DailyUsed  int64  `json:"daily_used"`
	DailyQuota int64  `json:"daily_quota"`
}
