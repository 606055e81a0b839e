package consensus

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/quorum/internal/models"
)

func quote(source string, value, weight float64, priority int) models.Quote {
	return models.Quote{
		SourceID: source,
		Symbol:   "AAPL",
		Metric:   models.MetricPrice,
		Value:    value,
		Weight:   weight,
		Priority: priority,
	}
}

func newTestAggregator(t *testing.T, mutate func(*Config)) *Aggregator {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	agg, err := NewAggregator(cfg)
	require.NoError(t, err)
	return agg
}

func TestAggregate_WeightedMean(t *testing.T) {
	agg := newTestAggregator(t, nil)

	result, err := agg.Aggregate([]models.Quote{
		quote("yfinance", 100, 1.0, 1),
		quote("finnhub", 103, 1.5, 2),
		quote("alphavantage", 102, 1.5, 3),
	})
	require.NoError(t, err)

	// (100*1 + 103*1.5 + 102*1.5) / 4
	assert.InDelta(t, 101.875, result.ConsensusValue, 1e-9)
	assert.InDelta(t, 1.875/101.875, result.DiscrepancyPct, 1e-9)
	assert.Equal(t, models.SeverityNone, result.Severity)
	assert.Empty(t, result.OutlierSourceID)
	assert.Equal(t, 3, result.SourceCount)
	assert.Len(t, result.ContributingQuotes, 3)
	assert.Empty(t, result.ExcludedQuotes)
	assert.Equal(t, "2024.1", result.BandsVersion)
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, models.MetricPrice, result.Metric)
}

func TestAggregate_IdenticalQuotes(t *testing.T) {
	agg := newTestAggregator(t, nil)

	result, err := agg.Aggregate([]models.Quote{
		quote("a", 50, 1, 1),
		quote("b", 50, 2, 2),
		quote("c", 50, 3, 3),
	})
	require.NoError(t, err)

	assert.InDelta(t, 50, result.ConsensusValue, 1e-9)
	assert.Equal(t, 0.0, result.DiscrepancyPct)
	assert.Equal(t, models.SeverityNone, result.Severity)
	assert.Empty(t, result.OutlierSourceID)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
}

func TestAggregate_Outliers(t *testing.T) {
	tests := []struct {
		name    string
		outlier float64
	}{
		{"upward", 116},
		{"downward", 84},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := newTestAggregator(t, nil)

			result, err := agg.Aggregate([]models.Quote{
				quote("a", 100, 1, 1),
				quote("b", 100, 1, 2),
				quote("c", tt.outlier, 1, 3),
			})
			require.NoError(t, err)

			assert.Equal(t, "c", result.OutlierSourceID)
			assert.InDelta(t, 100, result.ConsensusValue, 1e-9)
			assert.InDelta(t, 0.16, result.DiscrepancyPct, 1e-9)
			assert.Equal(t, models.SeverityHigh, result.Severity)
			assert.Equal(t, 2, result.SourceCount)
			require.Len(t, result.ExcludedQuotes, 1)
			assert.Equal(t, "c", result.ExcludedQuotes[0].SourceID)
			assert.Contains(t, result.Deviations, "c")
		})
	}
}

func TestAggregate_OutlierKeptWhenExclusionDisabled(t *testing.T) {
	agg := newTestAggregator(t, func(c *Config) { c.ExcludeOutliers = false })

	result, err := agg.Aggregate([]models.Quote{
		quote("a", 100, 1, 1),
		quote("b", 100, 1, 2),
		quote("c", 130, 1, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, "c", result.OutlierSourceID)
	assert.InDelta(t, 110, result.ConsensusValue, 1e-9)
	assert.Equal(t, 3, result.SourceCount)
	assert.Empty(t, result.ExcludedQuotes)
}

func TestAggregate_NoOutlierBelowThreeQuotes(t *testing.T) {
	agg := newTestAggregator(t, nil)

	result, err := agg.Aggregate([]models.Quote{
		quote("a", 100, 1, 1),
		quote("b", 150, 1, 2),
	})
	require.NoError(t, err)

	assert.Empty(t, result.OutlierSourceID)
	assert.InDelta(t, 125, result.ConsensusValue, 1e-9)
	assert.Equal(t, models.SeverityHigh, result.Severity)
}

func TestAggregate_SmallSpreadIsNotOutlier(t *testing.T) {
	agg := newTestAggregator(t, nil)

	// c is far from the others relative to their spread but under the floor
	result, err := agg.Aggregate([]models.Quote{
		quote("a", 100.00, 1, 1),
		quote("b", 100.01, 1, 2),
		quote("c", 101.00, 1, 3),
	})
	require.NoError(t, err)
	assert.Empty(t, result.OutlierSourceID)
}

func TestAggregate_NoData(t *testing.T) {
	agg := newTestAggregator(t, nil)

	_, err := agg.Aggregate(nil)
	assert.True(t, errors.Is(err, models.ErrNoDataAvailable))

	_, err = agg.Aggregate([]models.Quote{
		quote("a", 0, 1, 1),
		quote("b", -5, 1, 2),
		quote("c", math.NaN(), 1, 3),
		quote("d", math.Inf(1), 1, 4),
	})
	assert.True(t, errors.Is(err, models.ErrNoDataAvailable))
}

func TestAggregate_SingleSource(t *testing.T) {
	agg := newTestAggregator(t, nil)

	result, err := agg.Aggregate([]models.Quote{quote("a", 42, 1, 1)})
	require.NoError(t, err)

	assert.Equal(t, 42.0, result.ConsensusValue)
	assert.Equal(t, models.SeverityNone, result.Severity)
	assert.LessOrEqual(t, result.Confidence, 0.5)
	assert.Equal(t, 1, result.SourceCount)
}

func TestAggregate_InvalidQuotesIgnored(t *testing.T) {
	agg := newTestAggregator(t, nil)

	result, err := agg.Aggregate([]models.Quote{
		quote("a", 100, 1, 1),
		quote("b", math.NaN(), 1, 2),
		quote("c", 102, 1, 3),
	})
	require.NoError(t, err)
	assert.InDelta(t, 101, result.ConsensusValue, 1e-9)
	assert.Equal(t, 2, result.SourceCount)
	assert.NotContains(t, result.Deviations, "b")
}

func TestAggregate_OrderIndependent(t *testing.T) {
	agg := newTestAggregator(t, nil)

	quotes := []models.Quote{
		quote("yfinance", 100.13, 1.0, 1),
		quote("finnhub", 101.71, 1.5, 2),
		quote("alphavantage", 99.87, 1.2, 3),
		quote("coingecko", 104.29, 0.7, 4),
	}
	reversed := []models.Quote{quotes[3], quotes[2], quotes[1], quotes[0]}
	shuffled := []models.Quote{quotes[2], quotes[0], quotes[3], quotes[1]}

	base, err := agg.Aggregate(quotes)
	require.NoError(t, err)

	for _, perm := range [][]models.Quote{reversed, shuffled} {
		got, err := agg.Aggregate(perm)
		require.NoError(t, err)
		assert.Equal(t, base.ConsensusValue, got.ConsensusValue)
		assert.Equal(t, base.DiscrepancyPct, got.DiscrepancyPct)
		assert.Equal(t, base.Severity, got.Severity)
		assert.Equal(t, base.OutlierSourceID, got.OutlierSourceID)
		assert.Equal(t, base.Confidence, got.Confidence)
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	agg := newTestAggregator(t, nil)

	quotes := []models.Quote{
		quote("c", 116, 1, 3),
		quote("b", 100, 1, 2),
		quote("a", 100, 1, 1),
	}
	before := append([]models.Quote(nil), quotes...)

	_, err := agg.Aggregate(quotes)
	require.NoError(t, err)
	assert.Equal(t, before, quotes)
}

func TestAggregate_ConsensusWithinRange(t *testing.T) {
	agg := newTestAggregator(t, func(c *Config) { c.ExcludeOutliers = false })

	result, err := agg.Aggregate([]models.Quote{
		quote("a", 10, 0.2, 1),
		quote("b", 12, 5, 2),
		quote("c", 11, 1, 3),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.ConsensusValue, 10.0)
	assert.LessOrEqual(t, result.ConsensusValue, 12.0)
}

func TestAggregate_ZeroWeightsFallBackToMean(t *testing.T) {
	agg := newTestAggregator(t, nil)

	result, err := agg.Aggregate([]models.Quote{
		quote("a", 100, 0, 1),
		quote("b", 102, 0, 2),
	})
	require.NoError(t, err)
	assert.InDelta(t, 101, result.ConsensusValue, 1e-9)
}

func TestConfidence_Monotonic(t *testing.T) {
	agg := newTestAggregator(t, nil)

	// More sources at equal discrepancy never lowers confidence
	prev := 0.0
	for n := 1; n <= 6; n++ {
		c := agg.confidence(n, 0.02)
		assert.GreaterOrEqual(t, c, prev, "n=%d", n)
		prev = c
	}

	// More discrepancy at equal sources never raises it
	prev = 1.0
	for _, d := range []float64{0, 0.01, 0.03, 0.07, 0.15, 0.5} {
		c := agg.confidence(3, d)
		assert.LessOrEqual(t, c, prev, "d=%g", d)
		assert.GreaterOrEqual(t, c, 0.0)
		prev = c
	}
}

func TestBands_Classify(t *testing.T) {
	bands := DefaultBands()

	tests := []struct {
		discrepancy float64
		expected    models.Severity
	}{
		{0, models.SeverityNone},
		{0.0299, models.SeverityNone},
		{0.03, models.SeverityLow},
		{0.0699, models.SeverityLow},
		{0.07, models.SeverityMedium},
		{0.1499, models.SeverityMedium},
		{0.15, models.SeverityHigh},
		{2.0, models.SeverityHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, bands.Classify(tt.discrepancy), "discrepancy %g", tt.discrepancy)
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Bands.LowBelow = 0.02
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.OutlierMultiplier = 1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.SingleSourceCap = 0
	_, err := NewAggregator(bad)
	assert.Error(t, err)
}
