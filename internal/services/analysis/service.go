// Package analysis runs the per-ticker recommendation pipeline
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/metrics"
	"github.com/bobmcallan/quorum/internal/models"
	"github.com/bobmcallan/quorum/internal/services/scoring"
	"github.com/bobmcallan/quorum/internal/signals"
)

// Dependencies are the collaborators of the pipeline. Any research source
// may be nil; its factor then falls back to neutral or missing.
type Dependencies struct {
	Prices       interfaces.PriceConsensusService
	History      []interfaces.HistorySource // tried in order
	News         interfaces.NewsSource
	Sentiment    interfaces.SentimentScorer
	Social       interfaces.SocialSource
	Fundamentals interfaces.FundamentalsSource
	Analyst      interfaces.AnalystSource
	Computer     *signals.Computer
	Scorer       *scoring.Scorer
}

// Options tunes batch execution
type Options struct {
	RequestTimeout   time.Duration
	MaxWorkers       int
	MaxTickers       int
	DefaultTimeframe string
	DefaultCurrency  string
	NewsLimit        int
	SocialLimit      int
}

// DefaultOptions returns the standard limits
func DefaultOptions() Options {
	return Options{
		RequestTimeout:   30 * time.Second,
		MaxWorkers:       4,
		MaxTickers:       10,
		DefaultTimeframe: "6mo",
		DefaultCurrency:  "USD",
		NewsLimit:        10,
		SocialLimit:      30,
	}
}

// Service implements interfaces.AnalysisService
type Service struct {
	deps     Dependencies
	opts     Options
	logger   *common.Logger
	recorder *metrics.Recorder
	now      func() time.Time
	newID    func() string
}

var _ interfaces.AnalysisService = (*Service)(nil)

// NewService creates the analysis orchestrator
func NewService(deps Dependencies, opts Options, logger *common.Logger, recorder *metrics.Recorder) *Service {
	def := DefaultOptions()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = def.MaxWorkers
	}
	if opts.MaxTickers <= 0 {
		opts.MaxTickers = def.MaxTickers
	}
	if opts.DefaultTimeframe == "" {
		opts.DefaultTimeframe = def.DefaultTimeframe
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = def.DefaultCurrency
	}
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = def.NewsLimit
	}
	if opts.SocialLimit <= 0 {
		opts.SocialLimit = def.SocialLimit
	}
	if deps.Computer == nil {
		deps.Computer = signals.NewComputer()
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetClock overrides the time source used for timestamps
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Analyze scores every ticker in the request with at most MaxWorkers in
// flight. Per-ticker failures are listed in the response; the error return
// is reserved for a malformed request.
func (s *Service) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResponse, error) {
	start := s.now()
	tickers, timeframe, currency, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	resp := &models.AnalysisResponse{
		RequestID: s.newID(),
		Timeframe: timeframe,
		Currency:  currency,
		ChartType: req.ChartType,
		Results:   []models.TickerAnalysis{},
		Failures:  []models.TickerFailure{},
	}

	results := make([]*models.TickerAnalysis, len(tickers))
	failures := make([]*models.TickerFailure, len(tickers))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.MaxWorkers)
	for i, ticker := range tickers {
		g.Go(func() error {
			res, err := s.AnalyzeTicker(ctx, ticker, timeframe, currency)
			if err != nil {
				kind := models.ErrorKind(err)
				if errors.Is(err, context.DeadlineExceeded) {
					kind = "timeout"
				}
				failures[i] = &models.TickerFailure{Ticker: ticker, Kind: kind, Reason: err.Error()}
				s.recorder.RecordTicker(kind)
				s.logger.Warn().Str("request_id", resp.RequestID).Str("ticker", ticker).Str("kind", kind).Err(err).Msg("Ticker analysis failed")
				return nil
			}
			results[i] = res
			s.recorder.RecordTicker("ok")
			s.recorder.RecordRecommendation(res.Recommendation)
			return nil
		})
	}
	_ = g.Wait()

	for i := range tickers {
		if results[i] != nil {
			resp.Results = append(resp.Results, *results[i])
		}
		if failures[i] != nil {
			resp.Failures = append(resp.Failures, *failures[i])
		}
	}
	resp.GeneratedAt = s.now()

	elapsed := resp.GeneratedAt.Sub(start)
	s.recorder.RecordAnalysisDuration(elapsed.Seconds())
	s.logger.Info().
		Str("request_id", resp.RequestID).
		Int("tickers", len(tickers)).
		Int("succeeded", len(resp.Results)).
		Int("failed", len(resp.Failures)).
		Dur("elapsed", elapsed).
		Msg("Analysis complete")

	return resp, nil
}

func (s *Service) normalize(req models.AnalysisRequest) ([]string, string, string, error) {
	seen := make(map[string]bool, len(req.Tickers))
	var tickers []string
	for _, t := range req.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	if len(tickers) == 0 {
		return nil, "", "", fmt.Errorf("at least one ticker is required")
	}
	if len(tickers) > s.opts.MaxTickers {
		return nil, "", "", fmt.Errorf("at most %d tickers per request, got %d", s.opts.MaxTickers, len(tickers))
	}

	timeframe := req.Timeframe
	if timeframe == "" {
		timeframe = s.opts.DefaultTimeframe
	}
	if !models.ValidTimeframe(timeframe) {
		return nil, "", "", fmt.Errorf("unsupported timeframe %q", timeframe)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.opts.DefaultCurrency
	}
	return tickers, timeframe, currency, nil
}

// research is everything gathered for one ticker before scoring
type research struct {
	mu           sync.Mutex
	price        *models.PriceConsensus
	priceErr     error
	history      []models.OHLCV
	historyErr   error
	sentiment    []models.SentimentResult
	social       *models.SocialSummary
	fundamentals *models.Fundamentals
	analyst      *models.AnalystData
	notes        []string
}

func (r *research) note(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

// AnalyzeTicker runs the full pipeline for one ticker. It fails only when
// the symbol is invalid or no price and no history could be obtained.
func (s *Service) AnalyzeTicker(ctx context.Context, ticker, timeframe, currency string) (*models.TickerAnalysis, error) {
	if err := shared.CheckSymbol("analysis", ticker); err != nil {
		return nil, err
	}

	r := s.gather(ctx, ticker, timeframe, currency)

	if errors.Is(r.priceErr, models.ErrInvalidSymbol) {
		return nil, r.priceErr
	}
	if r.priceErr != nil && len(r.history) == 0 {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", ticker, ctx.Err())
		}
		return nil, fmt.Errorf("%s: no price or history: %w", ticker, models.ErrNoDataAvailable)
	}

	technical := s.deps.Computer.Compute(r.history, timeframe)
	factors := scoring.Factors(r.sentiment, r.social, technical, r.fundamentals, r.analyst)

	combined, err := s.deps.Scorer.Score(factors)
	if err != nil {
		return nil, fmt.Errorf("%s: scoring: %w", ticker, err)
	}

	if r.priceErr != nil {
		r.notes = append(r.notes, "price consensus unavailable: "+r.priceErr.Error())
	}
	if r.historyErr != nil {
		r.notes = append(r.notes, "history unavailable: "+r.historyErr.Error())
	}

	sentiment := r.sentiment
	if sentiment == nil {
		sentiment = []models.SentimentResult{}
	}

	s.logger.Debug().
		Str("ticker", ticker).
		Float64("score", combined.Value).
		Str("recommendation", string(combined.Recommendation)).
		Str("technical", string(technical.Signal)).
		Msg("Ticker scored")

	return &models.TickerAnalysis{
		Ticker:           ticker,
		CombinedScore:    combined.Value,
		Recommendation:   combined.Recommendation,
		Score:            combined,
		FactorScores:     factors,
		Technical:        technical,
		Price:            r.price,
		SentimentResults: sentiment,
		Social:           r.social,
		AnalystData:      r.analyst,
		Fundamentals:     r.fundamentals,
		Notes:            r.notes,
		AnalyzedAt:       s.now(),
	}, nil
}

// gather fetches every input concurrently. Individual failures are
// recorded as notes and never cancel the siblings.
func (s *Service) gather(ctx context.Context, ticker, timeframe, currency string) *research {
	r := &research{}
	var wg sync.WaitGroup

	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if s.deps.Prices != nil {
		run(func() {
			r.price, r.priceErr = s.deps.Prices.PriceConsensus(ctx, ticker, currency)
		})
	} else {
		r.priceErr = fmt.Errorf("no price service: %w", models.ErrSourceUnavailable)
	}

	run(func() { r.history, r.historyErr = s.fetchHistory(ctx, ticker, timeframe) })

	if s.deps.News != nil {
		run(func() { r.sentiment = s.scoreNews(ctx, ticker, r) })
	}
	if s.deps.Social != nil {
		run(func() {
			summary, err := s.deps.Social.GetSocialSummary(ctx, ticker, s.opts.SocialLimit)
			if err != nil {
				r.note("social unavailable: %v", err)
				return
			}
			r.social = summary
		})
	}
	if s.deps.Fundamentals != nil {
		run(func() {
			f, err := s.deps.Fundamentals.GetFundamentals(ctx, ticker)
			if err != nil {
				r.note("fundamentals unavailable: %v", err)
				return
			}
			r.fundamentals = f
		})
	}
	if s.deps.Analyst != nil {
		run(func() {
			a, err := s.deps.Analyst.GetAnalystData(ctx, ticker)
			if err != nil {
				r.note("analyst data unavailable: %v", err)
				return
			}
			r.analyst = a
		})
	}

	wg.Wait()
	return r
}

// fetchHistory walks the history sources until one returns bars
func (s *Service) fetchHistory(ctx context.Context, ticker, timeframe string) ([]models.OHLCV, error) {
	var errs []error
	for _, src := range s.deps.History {
		bars, err := src.GetHistory(ctx, ticker, timeframe)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		if err == nil {
			err = models.NewSourceError(src.ID(), models.ErrNoDataAvailable, nil)
		}
		s.logger.Debug().Str("ticker", ticker).Str("source", src.ID()).Err(err).Msg("History source failed, trying next")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no history source configured: %w", models.ErrNoDataAvailable)
	}
	return nil, errors.Join(errs...)
}

// scoreNews fetches articles and scores each; unscorable articles are skipped
func (s *Service) scoreNews(ctx context.Context, ticker string, r *research) []models.SentimentResult {
	items, err := s.deps.News.GetCompanyNews(ctx, ticker, s.opts.NewsLimit)
	if err != nil {
		r.note("news unavailable: %v", err)
		return nil
	}
	if s.deps.Sentiment == nil || len(items) == 0 {
		return nil
	}

	scored := make([]*models.SentimentResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, item := range items {
		g.Go(func() error {
			score, err := s.deps.Sentiment.Score(gctx, item.Text())
			if err != nil {
				s.logger.Debug().Str("ticker", ticker).Str("headline", item.Headline).Err(err).Msg("Sentiment scoring failed")
				return nil
			}
			scored[i] = &models.SentimentResult{
				Headline:    item.Headline,
				Source:      item.Source,
				URL:         item.URL,
				PublishedAt: item.PublishedAt,
				Sentiment:   score,
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []models.SentimentResult
	for _, sr := range scored {
		if sr != nil {
			out = append(out, *sr)
		}
	}
	if skipped := len(items) - len(out); skipped > 0 {
		r.note("%d of %d articles could not be scored", skipped, len(items))
	}
	return out
}
