// Package metrics provides Prometheus instrumentation for Quorum
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bobmcallan/quorum/internal/models"
)

// Recorder records engine metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	sourceRequests   *prometheus.CounterVec
	budget           *prometheus.GaugeVec
	consensus        *prometheus.CounterVec
	outliers         *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	recommendations  *prometheus.CounterVec
	tickers          *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// New creates a recorder registered with reg
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		sourceRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_source_requests_total",
				Help: "Source fetches by outcome",
			},
			[]string{"source", "outcome"},
		),
		budget: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quorum_source_budget_calls",
				Help: "Rate budget counters per source",
			},
			[]string{"source", "kind"},
		),
		consensus: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_consensus_total",
				Help: "Consensus computations by severity",
			},
			[]string{"metric", "severity"},
		),
		outliers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_consensus_outliers_total",
				Help: "Sources flagged as outliers",
			},
			[]string{"source"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_cache_lookups_total",
				Help: "Recommendation cache lookups by result",
			},
			[]string{"sub_key", "result"},
		),
		recommendations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_recommendations_total",
				Help: "Recommendations produced by bucket",
			},
			[]string{"recommendation"},
		),
		tickers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorum_analysis_tickers_total",
				Help: "Analysed tickers by outcome",
			},
			[]string{"outcome"},
		),
		analysisDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quorum_analysis_duration_seconds",
				Help:    "Duration of analysis requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordSourceRequest records one source fetch; outcome is "ok" or an error kind
func (r *Recorder) RecordSourceRequest(source, outcome string) {
	if r == nil {
		return
	}
	r.sourceRequests.WithLabelValues(source, outcome).Inc()
}

// RecordBudget publishes a budget snapshot
func (r *Recorder) RecordBudget(stats models.BudgetStats) {
	if r == nil {
		return
	}
	r.budget.WithLabelValues(stats.Source, "allowed").Set(float64(stats.Allowed))
	r.budget.WithLabelValues(stats.Source, "rejected").Set(float64(stats.Rejected))
	r.budget.WithLabelValues(stats.Source, "daily_used").Set(float64(stats.DailyUsed))
}

// RecordConsensus records a consensus result
func (r *Recorder) RecordConsensus(result *models.ConsensusResult) {
	if r == nil || result == nil {
		return
	}
	r.consensus.WithLabelValues(string(result.Metric), string(result.Severity)).Inc()
	if result.OutlierSourceID != "" {
		r.outliers.WithLabelValues(result.OutlierSourceID).Inc()
	}
}

// RecordCacheLookup records "hit", "miss" or "refresh" for a sub-key
func (r *Recorder) RecordCacheLookup(subKey, result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(subKey, result).Inc()
}

// RecordRecommendation records a scored recommendation
func (r *Recorder) RecordRecommendation(rec models.Recommendation) {
	if r == nil {
		return
	}
	r.recommendations.WithLabelValues(string(rec)).Inc()
}

// RecordTicker records a ticker outcome ("ok" or a failure kind)
func (r *Recorder) RecordTicker(outcome string) {
	if r == nil {
		return
	}
	r.tickers.WithLabelValues(outcome).Inc()
}

// RecordAnalysisDuration records analysis latency in seconds
func (r *Recorder) RecordAnalysisDuration(seconds float64) {
	if r == nil {
		return
	}
	r.analysisDuration.Observe(seconds)
}
