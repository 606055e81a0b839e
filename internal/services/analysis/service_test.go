package analysis

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

	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
	"github.com/bobmcallan/quorum/internal/services/scoring"
)

// --- mocks ---

type mockPrices struct {
	mu       sync.Mutex
	prices   map[string]float64
	errs     map[string]error
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (m *mockPrices) PriceConsensus(ctx context.Context, symbol, _ string) (*models.PriceConsensus, error) {
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.peak.Load()
		if cur <= peak || m.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[symbol]; ok {
		return nil, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrNoDataAvailable)
	}
	return &models.PriceConsensus{
		Price: &models.ConsensusResult{Symbol: symbol, ConsensusValue: p, Severity: models.SeverityNone, SourceCount: 2},
	}, nil
}

type mockHistory struct {
	id    string
	bars  map[string][]models.OHLCV
	err   error
	calls atomic.Int32
}

func (m *mockHistory) ID() string { return m.id }

func (m *mockHistory) GetHistory(_ context.Context, symbol, _ string) ([]models.OHLCV, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.bars[symbol], nil
}

type mockNews struct {
	items []models.NewsItem
	err   error
}

func (m *mockNews) GetCompanyNews(context.Context, string, int) ([]models.NewsItem, error) {
	return m.items, m.err
}

type mockScorer struct{}

func (mockScorer) Score(_ context.Context, text string) (models.SentimentScore, error) {
	if text == "fail" {
		return models.SentimentScore{}, errors.New("model error")
	}
	return models.SentimentScore{Label: models.SentimentPositive, Positive: 0.8, Neutral: 0.2}, nil
}

type mockSocial struct{}

func (mockSocial) GetSocialSummary(context.Context, string, int) (*models.SocialSummary, error) {
	return &models.SocialSummary{Source: "stocktwits", Messages: 30, Bullish: 8}, nil
}

type mockFundamentals struct{ err error }

func (m mockFundamentals) GetFundamentals(_ context.Context, symbol string) (*models.Fundamentals, error) {
	if m.err != nil {
		return nil, m.err
	}
	pe := 12.0
	return &models.Fundamentals{Symbol: symbol, PE: &pe}, nil
}

type mockAnalyst struct{}

func (mockAnalyst) GetAnalystData(_ context.Context, symbol string) (*models.AnalystData, error) {
	return &models.AnalystData{Symbol: symbol, StrongBuy: 5, Buy: 5}, nil
}

// --- helpers ---

func trend(n int, start, step float64) []models.OHLCV {
	bars := make([]models.OHLCV, n)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := start
	for i := range bars {
		bars[i] = models.OHLCV{Time: t0.AddDate(0, 0, i), Open: p, High: p + 0.5, Low: p - 0.5, Close: p, Volume: 1e6}
		p += step
	}
	return bars
}

func newTestService(t *testing.T, deps Dependencies, opts Options) *Service {
	t.Helper()
	scorer, err := scoring.NewScorer(scoring.DefaultWeights(), scoring.DefaultThresholds())
	require.NoError(t, err)
	deps.Scorer = scorer
	svc := NewService(deps, opts, nil, nil)
	svc.newID = func() string { return "req-1" }
	return svc
}

// --- tests ---

func TestAnalyze_FullPipeline(t *testing.T) {
	history := &mockHistory{id: "yfinance", bars: map[string][]models.OHLCV{"AAPL": trend(120, 100, 1)}}
	svc := newTestService(t, Dependencies{
		Prices:       &mockPrices{prices: map[string]float64{"AAPL": 219}},
		History:      historyChain{history}.sources(),
		News:         &mockNews{items: []models.NewsItem{{Headline: "Record quarter"}, {Headline: "fail"}}},
		Sentiment:    mockScorer{},
		Social:       mockSocial{},
		Fundamentals: mockFundamentals{},
		Analyst:      mockAnalyst{},
	}, Options{})

	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"aapl"}})
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "6mo", resp.Timeframe)
	assert.Equal(t, "USD", resp.Currency)
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Failures)

	res := resp.Results[0]
	assert.Equal(t, "AAPL", res.Ticker)
	assert.Equal(t, models.SignalBullish, res.Technical.Signal)
	require.Len(t, res.SentimentResults, 1)
	assert.InDelta(t, 0.9, res.FactorScores.News, 1e-9)
	require.NotNil(t, res.FactorScores.Fundamental)
	require.NotNil(t, res.FactorScores.Analyst)
	assert.True(t, res.Recommendation.IsBuy())
	assert.Equal(t, res.Score.Value, res.CombinedScore)
	assert.InDelta(t, 219, res.Price.Price.ConsensusValue, 1e-9)
	assert.Contains(t, res.Notes, "1 of 2 articles could not be scored")
}

func TestAnalyze_PartialFailure(t *testing.T) {
	history := &mockHistory{id: "yfinance", bars: map[string][]models.OHLCV{"AAPL": trend(60, 100, 0.5)}}
	svc := newTestService(t, Dependencies{
		Prices: &mockPrices{
			prices: map[string]float64{"AAPL": 130},
			errs:   map[string]error{"ZZZZ": fmt.Errorf("ZZZZ: %w", models.ErrInvalidSymbol)},
		},
		History: historyChain{history}.sources(),
	}, Options{})

	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"AAPL", "ZZZZ", "BAD TICKER"}})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "AAPL", resp.Results[0].Ticker)
	require.Len(t, resp.Failures, 2)
	assert.Equal(t, "ZZZZ", resp.Failures[0].Ticker)
	assert.Equal(t, "invalid_symbol", resp.Failures[0].Kind)
	assert.Equal(t, "BAD TICKER", resp.Failures[1].Ticker)
	assert.Equal(t, "invalid_symbol", resp.Failures[1].Kind)
}

func TestAnalyze_AllFail(t *testing.T) {
	svc := newTestService(t, Dependencies{
		Prices:  &mockPrices{},
		History: historyChain{&mockHistory{id: "yfinance", err: models.ErrSourceUnavailable}}.sources(),
	}, Options{})

	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"AAPL", "MSFT"}})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	require.Len(t, resp.Failures, 2)
	assert.Equal(t, "no_data", resp.Failures[0].Kind)
}

func TestAnalyze_HistoryFallback(t *testing.T) {
	primary := &mockHistory{id: "yfinance", err: models.NewSourceError("yfinance", models.ErrRateLimitExceeded, nil)}
	fallback := &mockHistory{id: "alphavantage", bars: map[string][]models.OHLCV{"MSFT": trend(60, 300, -1)}}

	svc := newTestService(t, Dependencies{
		Prices:  &mockPrices{prices: map[string]float64{"MSFT": 241}},
		History: historyChain{primary, fallback}.sources(),
	}, Options{})

	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"MSFT"}, Timeframe: "3mo"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), fallback.calls.Load())
	assert.Equal(t, models.SignalBearish, resp.Results[0].Technical.Signal)
	assert.Equal(t, "3mo", resp.Results[0].Technical.Timeframe)
}

func TestAnalyze_NoHistoryStillScores(t *testing.T) {
	svc := newTestService(t, Dependencies{
		Prices:       &mockPrices{prices: map[string]float64{"AAPL": 100}},
		Fundamentals: mockFundamentals{err: models.ErrSourceUnavailable},
	}, Options{})

	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"AAPL"}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	res := resp.Results[0]
	assert.Equal(t, models.SignalInsufficientData, res.Technical.Signal)
	assert.Nil(t, res.FactorScores.Fundamental)
	assert.Equal(t, models.RecommendationHold, res.Recommendation)
	assert.NotEmpty(t, res.Notes)
	assert.NotNil(t, res.SentimentResults)
}

func TestAnalyze_WorkerLimit(t *testing.T) {
	prices := &mockPrices{
		prices: map[string]float64{"A": 1, "B": 1, "C": 1, "D": 1, "E": 1, "F": 1},
		delay:  20 * time.Millisecond,
	}
	svc := newTestService(t, Dependencies{Prices: prices}, Options{MaxWorkers: 2})

	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"A", "B", "C", "D", "E", "F"}})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 6)
	assert.LessOrEqual(t, prices.peak.Load(), int32(2))

	// Results keep request order
	for i, want := range []string{"A", "B", "C", "D", "E", "F"} {
		assert.Equal(t, want, resp.Results[i].Ticker)
	}
}

func TestAnalyze_RequestDeadline(t *testing.T) {
	prices := &mockPrices{prices: map[string]float64{"AAPL": 1}, delay: time.Second}
	svc := newTestService(t, Dependencies{Prices: prices}, Options{RequestTimeout: 30 * time.Millisecond})

	start := time.Now()
	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"AAPL"}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "timeout", resp.Failures[0].Kind)
}

func TestAnalyze_RequestValidation(t *testing.T) {
	svc := newTestService(t, Dependencies{}, Options{})

	_, err := svc.Analyze(context.Background(), models.AnalysisRequest{})
	assert.Error(t, err)

	_, err = svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"A"}, Timeframe: "5y"})
	assert.Error(t, err)

	many := make([]string, 11)
	for i := range many {
		many[i] = fmt.Sprintf("T%d", i)
	}
	_, err = svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: many})
	assert.Error(t, err)

	// Duplicates collapse before the limit applies
	prices := &mockPrices{prices: map[string]float64{"AAPL": 1}}
	svc = newTestService(t, Dependencies{Prices: prices}, Options{})
	resp, err := svc.Analyze(context.Background(), models.AnalysisRequest{Tickers: []string{"AAPL", "aapl", " AAPL "}})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

type historyChain []*mockHistory

func (h historyChain) sources() []interfaces.HistorySource {
	out := make([]interfaces.HistorySource, len(h))
	for i, m := range h {
		out[i] = m
	}
	return out
}
