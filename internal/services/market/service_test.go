package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/quorum/internal/cache"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/models"
	"github.com/bobmcallan/quorum/internal/storage"
)

// --- mocks ---

type quote struct {
	price, prev float64
	confidence  float64
}

type mockPrices struct {
	mu     sync.Mutex
	quotes map[string]quote
	calls  atomic.Int32
}

func (m *mockPrices) PriceConsensus(_ context.Context, symbol, _ string) (*models.PriceConsensus, error) {
	m.calls.Add(1)
	m.mu.Lock()
	q, ok := m.quotes[symbol]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrNoDataAvailable)
	}
	change := (q.price - q.prev) / q.prev * 100
	return &models.PriceConsensus{
		Price:         &models.ConsensusResult{Symbol: symbol, ConsensusValue: q.price, Confidence: q.confidence, Severity: models.SeverityNone, SourceCount: 3},
		PreviousClose: &models.ConsensusResult{Symbol: symbol, ConsensusValue: q.prev},
		ChangePct:     &change,
	}, nil
}

type mockAnalysis struct {
	scores map[string]float64
	calls  atomic.Int32
}

func (m *mockAnalysis) Analyze(_ context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	m.calls.Add(1)
	th := models.RecommendationHold
	resp := &models.AnalysisResponse{Currency: req.Currency}
	for _, t := range req.Tickers {
		score, ok := m.scores[t]
		if !ok {
			resp.Failures = append(resp.Failures, models.TickerFailure{Ticker: t, Kind: "no_data", Reason: "no data"})
			continue
		}
		rec := th
		switch {
		case score >= 0.8:
			rec = models.RecommendationStrongBuy
		case score >= 0.6:
			rec = models.RecommendationBuy
		case score < 0.2:
			rec = models.RecommendationStrongSell
		case score < 0.4:
			rec = models.RecommendationSell
		}
		resp.Results = append(resp.Results, models.TickerAnalysis{Ticker: t, CombinedScore: score, Recommendation: rec})
	}
	return resp, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- helpers ---

func testOptions() Options {
	return Options{
		Universe: []string{"AAPL", "MSFT", "NVDA", "TSLA", "XOM", "INTC", "GONE"},
		Indices: map[string][]common.IndexConfig{
			"USD": {{Symbol: "^GSPC", Name: "S&P 500"}, {Symbol: "^IXIC", Name: "NASDAQ"}},
			"EUR": {{Symbol: "^GDAXI", Name: "DAX"}},
		},
		Sectors: []common.IndexConfig{
			{Symbol: "XLK", Name: "Technology"},
			{Symbol: "XLF", Name: "Financials"},
			{Symbol: "XLE", Name: "Energy"},
			{Symbol: "XLV", Name: "Health Care"},
		},
		ListSize:  2,
		BatchSize: 3,
	}
}

func newTestService(t *testing.T, prices *mockPrices, analysis *mockAnalysis) (*Service, *cache.Cache, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()
	store.SetClock(clk.Now)
	c := cache.New(store, 15*time.Minute, nil, nil)
	c.SetClock(clk.Now)

	svc := NewService(prices, analysis, c, testOptions(), nil)
	svc.SetClock(clk.Now)
	return svc, c, clk
}

func defaultPrices() *mockPrices {
	return &mockPrices{quotes: map[string]quote{
		"^GSPC":  {price: 101, prev: 100, confidence: 0.7},
		"^IXIC":  {price: 102, prev: 100, confidence: 0.5},
		"^GDAXI": {price: 99, prev: 100, confidence: 0.6},
		"XLK":    {price: 103, prev: 100},
		"XLF":    {price: 99, prev: 100},
		"XLE":    {price: 101, prev: 100},
		"XLV":    {price: 102, prev: 100},
	}}
}

func defaultAnalysis() *mockAnalysis {
	return &mockAnalysis{scores: map[string]float64{
		"AAPL": 0.72, "MSFT": 0.85, "NVDA": 0.65,
		"TSLA": 0.15, "XOM": 0.35, "INTC": 0.30,
	}}
}

// --- tests ---

func TestGetMarketSentiment(t *testing.T) {
	svc, _, _ := newTestService(t, defaultPrices(), defaultAnalysis())

	ms, err := svc.GetMarketSentiment(context.Background(), "usd", false)
	require.NoError(t, err)

	assert.Equal(t, "USD", ms.Currency)
	assert.Equal(t, models.MoodBullish, ms.Sentiment)
	assert.InDelta(t, 0.6, ms.Confidence, 1e-9)
	assert.False(t, ms.Degraded)
	require.Len(t, ms.MarketIndices, 2)
	assert.InDelta(t, 1.0, ms.MarketIndices[0].ChangePct, 1e-9)

	require.Len(t, ms.TopSectors, 3)
	assert.Equal(t, []string{"XLK", "XLV", "XLE"}, []string{ms.TopSectors[0].Symbol, ms.TopSectors[1].Symbol, ms.TopSectors[2].Symbol})

	require.Len(t, ms.BuyRecommendations, 2)
	assert.Equal(t, "MSFT", ms.BuyRecommendations[0].Ticker)
	assert.Equal(t, "AAPL", ms.BuyRecommendations[1].Ticker)

	require.Len(t, ms.SellRecommendations, 2)
	assert.Equal(t, "TSLA", ms.SellRecommendations[0].Ticker)
	assert.Equal(t, "INTC", ms.SellRecommendations[1].Ticker)
}

func TestGetMarketSentiment_SharesOneUniverseScan(t *testing.T) {
	analysis := defaultAnalysis()
	svc, _, _ := newTestService(t, defaultPrices(), analysis)

	_, err := svc.GetMarketSentiment(context.Background(), "USD", false)
	require.NoError(t, err)

	// Seven tickers in batches of three
	assert.Equal(t, int32(3), analysis.calls.Load())
}

func TestGetMarketSentiment_CachedWithinTTL(t *testing.T) {
	prices, analysis := defaultPrices(), defaultAnalysis()
	svc, _, clk := newTestService(t, prices, analysis)
	ctx := context.Background()

	first, err := svc.GetMarketSentiment(ctx, "USD", false)
	require.NoError(t, err)
	priceCalls, analysisCalls := prices.calls.Load(), analysis.calls.Load()

	clk.Advance(10 * time.Minute)
	second, err := svc.GetMarketSentiment(ctx, "USD", false)
	require.NoError(t, err)

	assert.Equal(t, priceCalls, prices.calls.Load())
	assert.Equal(t, analysisCalls, analysis.calls.Load())
	assert.Equal(t, first.BuyRecommendations, second.BuyRecommendations)
	assert.True(t, first.GeneratedAt.Equal(second.GeneratedAt))

	_, err = svc.GetMarketSentiment(ctx, "USD", true)
	require.NoError(t, err)
	assert.Greater(t, prices.calls.Load(), priceCalls)
	assert.Greater(t, analysis.calls.Load(), analysisCalls)
}

func TestRefreshBuy_LeavesSellUntouched(t *testing.T) {
	analysis := defaultAnalysis()
	svc, c, clk := newTestService(t, defaultPrices(), analysis)
	ctx := context.Background()

	_, err := svc.GetMarketSentiment(ctx, "USD", false)
	require.NoError(t, err)

	sellBefore, found, err := c.Entry(ctx, CacheKey("USD"), SubKeySell)
	require.NoError(t, err)
	require.True(t, found)
	buyBefore, _, _ := c.Entry(ctx, CacheKey("USD"), SubKeyBuy)

	clk.Advance(5 * time.Minute)
	analysis.scores["NVDA"] = 0.95

	list, err := svc.RefreshBuy(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, "buy", list.Side)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "NVDA", list.Items[0].Ticker)

	sellAfter, found, err := c.Entry(ctx, CacheKey("USD"), SubKeySell)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, sellBefore.CreatedAt.Equal(sellAfter.CreatedAt))

	buyAfter, _, _ := c.Entry(ctx, CacheKey("USD"), SubKeyBuy)
	assert.True(t, buyAfter.CreatedAt.After(buyBefore.CreatedAt))
}

func TestRefreshSell(t *testing.T) {
	svc, _, _ := newTestService(t, defaultPrices(), defaultAnalysis())

	list, err := svc.RefreshSell(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, "sell", list.Side)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "TSLA", list.Items[0].Ticker)
	require.Len(t, list.Failures, 1)
	assert.Equal(t, "GONE", list.Failures[0].Ticker)
}

func TestGetMarketSentiment_Degraded(t *testing.T) {
	svc, _, _ := newTestService(t, &mockPrices{quotes: map[string]quote{}}, defaultAnalysis())

	ms, err := svc.GetMarketSentiment(context.Background(), "EUR", false)
	require.NoError(t, err)
	assert.True(t, ms.Degraded)
	assert.Equal(t, models.MoodUnknown, ms.Sentiment)
	assert.Equal(t, 0.0, ms.Confidence)
	require.Len(t, ms.MarketIndices, 1)
	assert.True(t, ms.MarketIndices[0].Unavailable)
	assert.Empty(t, ms.TopSectors)
	assert.NotEmpty(t, ms.BuyRecommendations)
}

func TestGetMarketSentiment_DegradedOverviewNotCached(t *testing.T) {
	prices := &mockPrices{quotes: map[string]quote{}}
	svc, c, _ := newTestService(t, prices, defaultAnalysis())
	ctx := context.Background()

	ms, err := svc.GetMarketSentiment(ctx, "EUR", false)
	require.NoError(t, err)
	require.True(t, ms.Degraded)

	var cached models.MarketOverview
	found, err := c.Get(ctx, CacheKey("EUR"), SubKeyOverview, &cached)
	require.NoError(t, err)
	assert.False(t, found)

	// The index feed recovers; the next plain request recomputes
	prices.mu.Lock()
	prices.quotes["^GDAXI"] = quote{price: 99, prev: 100, confidence: 0.6}
	prices.mu.Unlock()

	ms, err = svc.GetMarketSentiment(ctx, "EUR", false)
	require.NoError(t, err)
	assert.False(t, ms.Degraded)
	assert.NotEqual(t, models.MoodUnknown, ms.Sentiment)

	found, err = c.Get(ctx, CacheKey("EUR"), SubKeyOverview, &cached)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestGetMarketSentiment_UnknownCurrency(t *testing.T) {
	svc, _, _ := newTestService(t, defaultPrices(), defaultAnalysis())

	_, err := svc.GetMarketSentiment(context.Background(), "XYZ", false)
	assert.True(t, errors.Is(err, ErrUnknownCurrency))

	_, err = svc.RefreshBuy(context.Background(), "XYZ")
	assert.True(t, errors.Is(err, ErrUnknownCurrency))
}

func TestMood(t *testing.T) {
	tests := []struct {
		name       string
		indices    []models.IndexSnapshot
		mood       models.MarketMood
		confidence float64
	}{
		{"empty", nil, models.MoodUnknown, 0},
		{"bullish at threshold", []models.IndexSnapshot{{ChangePct: 0.5, Confidence: 0.8}}, models.MoodBullish, 0.8},
		{"bearish at threshold", []models.IndexSnapshot{{ChangePct: -0.5, Confidence: 0.8}}, models.MoodBearish, 0.8},
		{"neutral", []models.IndexSnapshot{{ChangePct: 0.2, Confidence: 0.6}, {ChangePct: -0.1, Confidence: 0.4}}, models.MoodNeutral, 0.5},
		{"partial coverage", []models.IndexSnapshot{{ChangePct: 1, Confidence: 0.8}, {Unavailable: true}}, models.MoodBullish, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mood, conf := Mood(tt.indices)
			assert.Equal(t, tt.mood, mood)
			assert.InDelta(t, tt.confidence, conf, 1e-9)
		})
	}
}
