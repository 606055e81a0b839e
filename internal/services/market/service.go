// Package market provides cached market sentiment and buy/sell lists
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/quorum/internal/cache"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

// Cache sub-keys under market:<CUR>
const (
	SubKeyOverview = "overview"
	SubKeyBuy      = "buy"
	SubKeySell     = "sell"
)

// Mood thresholds on the mean index change, in percent
const (
	BullishChangePct = 0.5
	BearishChangePct = -0.5
)

// TopSectors is how many sectors the overview ranks
const TopSectors = 3

// ErrUnknownCurrency is returned for a currency with no configured indices
var ErrUnknownCurrency = errors.New("unsupported currency")

// Options configures the instruments and list sizes
type Options struct {
	Universe   []string
	Indices    map[string][]common.IndexConfig
	Sectors    []common.IndexConfig
	ListSize   int
	BatchSize  int
	Timeframe  string
	MaxWorkers int
}

// Service implements interfaces.MarketService
type Service struct {
	prices   interfaces.PriceConsensusService
	analysis interfaces.AnalysisService
	cache    *cache.Cache
	opts     Options
	logger   *common.Logger
	now      func() time.Time
}

var _ interfaces.MarketService = (*Service)(nil)

// NewService creates a market sentiment service
func NewService(prices interfaces.PriceConsensusService, analysis interfaces.AnalysisService, c *cache.Cache, opts Options, logger *common.Logger) *Service {
	if opts.ListSize <= 0 {
		opts.ListSize = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		prices:   prices,
		analysis: analysis,
		cache:    c,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source used for GeneratedAt
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CacheKey is the cache key for a currency
func CacheKey(currency string) string {
	return "market:" + currency
}

func (s *Service) currency(currency string) (string, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = "USD"
	}
	if _, ok := s.opts.Indices[cur]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	return cur, nil
}

// GetMarketSentiment returns the overview and both lists. Each part is
// cached independently; refresh recomputes all three.
func (s *Service) GetMarketSentiment(ctx context.Context, currency string, refresh bool) (*models.MarketSentiment, error) {
	cur, err := s.currency(currency)
	if err != nil {
		return nil, err
	}
	key := CacheKey(cur)

	// Both lists come from one universe scan when both need computing
	scan := s.universeScan(cur)

	var overview models.MarketOverview
	var buy, sell models.RecommendationList

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, _, err := s.cache.GetOrCompute(gctx, key, SubKeyOverview, refresh, &overview, func(ctx context.Context) (any, error) {
			return s.computeOverview(ctx, cur)
		})
		return err
	})
	g.Go(func() error {
		_, _, err := s.cache.GetOrCompute(gctx, key, SubKeyBuy, refresh, &buy, func(ctx context.Context) (any, error) {
			return s.buildList(ctx, cur, SubKeyBuy, scan)
		})
		return err
	})
	g.Go(func() error {
		_, _, err := s.cache.GetOrCompute(gctx, key, SubKeySell, refresh, &sell, func(ctx context.Context) (any, error) {
			return s.buildList(ctx, cur, SubKeySell, scan)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.MarketSentiment{
		Currency:            cur,
		Sentiment:           overview.Sentiment,
		Confidence:          overview.Confidence,
		MarketIndices:       overview.MarketIndices,
		TopSectors:          overview.TopSectors,
		BuyRecommendations:  buy.Items,
		SellRecommendations: sell.Items,
		Degraded:            overview.Degraded,
		DegradedReason:      overview.DegradedReason,
		GeneratedAt:         overview.GeneratedAt,
	}, nil
}

// RefreshBuy recomputes only the buy list
func (s *Service) RefreshBuy(ctx context.Context, currency string) (*models.RecommendationList, error) {
	return s.refreshList(ctx, currency, SubKeyBuy)
}

// RefreshSell recomputes only the sell list
func (s *Service) RefreshSell(ctx context.Context, currency string) (*models.RecommendationList, error) {
	return s.refreshList(ctx, currency, SubKeySell)
}

func (s *Service) refreshList(ctx context.Context, currency, side string) (*models.RecommendationList, error) {
	cur, err := s.currency(currency)
	if err != nil {
		return nil, err
	}
	scan := s.universeScan(cur)

	var list models.RecommendationList
	_, _, err = s.cache.GetOrCompute(ctx, CacheKey(cur), side, true, &list, func(ctx context.Context) (any, error) {
		return s.buildList(ctx, cur, side, scan)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("currency", cur).Str("side", side).Int("items", len(list.Items)).Msg("Recommendation list refreshed")
	return &list, nil
}

// computeOverview builds the index and sector view. All indices failing
// degrades the overview instead of failing it.
func (s *Service) computeOverview(ctx context.Context, currency string) (*models.MarketOverview, error) {
	indices := s.snapshots(ctx, s.opts.Indices[currency], currency)

	var sectors []models.IndexSnapshot
	if currency == "USD" && len(s.opts.Sectors) > 0 {
		for _, snap := range s.snapshots(ctx, s.opts.Sectors, currency) {
			if !snap.Unavailable {
				sectors = append(sectors, snap)
			}
		}
		sort.SliceStable(sectors, func(i, j int) bool { return sectors[i].ChangePct > sectors[j].ChangePct })
		if len(sectors) > TopSectors {
			sectors = sectors[:TopSectors]
		}
	}
	if sectors == nil {
		sectors = []models.IndexSnapshot{}
	}

	overview := &models.MarketOverview{
		Currency:      currency,
		MarketIndices: indices,
		TopSectors:    sectors,
		GeneratedAt:   s.now(),
	}
	overview.Sentiment, overview.Confidence = Mood(indices)

	if overview.Sentiment == models.MoodUnknown {
		overview.Degraded = true
		overview.DegradedReason = "no index data available from any source"
		s.logger.Warn().Str("currency", currency).Msg("Market overview degraded")
	}
	return overview, nil
}

// snapshots fetches price consensus for each instrument concurrently
func (s *Service) snapshots(ctx context.Context, instruments []common.IndexConfig, currency string) []models.IndexSnapshot {
	out := make([]models.IndexSnapshot, len(instruments))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.MaxWorkers)
	for i, inst := range instruments {
		g.Go(func() error {
			out[i] = s.snapshot(ctx, inst, currency)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) snapshot(ctx context.Context, inst common.IndexConfig, currency string) models.IndexSnapshot {
	snap := models.IndexSnapshot{Symbol: inst.Symbol, Name: inst.Name}

	pc, err := s.prices.PriceConsensus(ctx, inst.Symbol, currency)
	if err == nil && pc.ChangePct == nil {
		err = fmt.Errorf("%s previous close: %w", inst.Symbol, models.ErrNoDataAvailable)
	}
	if err != nil {
		snap.Unavailable = true
		snap.FailureReason = err.Error()
		s.logger.Debug().Str("symbol", inst.Symbol).Err(err).Msg("Index snapshot unavailable")
		return snap
	}

	snap.Price = pc.Price.ConsensusValue
	snap.PreviousClose = pc.PreviousClose.ConsensusValue
	snap.ChangePct = *pc.ChangePct
	snap.Confidence = pc.Price.Confidence
	snap.Severity = pc.Price.Severity
	snap.SourceCount = pc.Price.SourceCount
	snap.OutlierSource = pc.Price.OutlierSourceID
	return snap
}

// Mood classifies the mean change of the available indices. Confidence is
// their mean consensus confidence scaled by coverage.
func Mood(indices []models.IndexSnapshot) (models.MarketMood, float64) {
	var sumChange, sumConf float64
	available := 0
	for _, idx := range indices {
		if idx.Unavailable {
			continue
		}
		sumChange += idx.ChangePct
		sumConf += idx.Confidence
		available++
	}
	if available == 0 {
		return models.MoodUnknown, 0
	}

	mean := sumChange / float64(available)
	coverage := float64(available) / float64(len(indices))
	confidence := math.Max(0, math.Min(1, sumConf/float64(available)*coverage))

	switch {
	case mean >= BullishChangePct:
		return models.MoodBullish, confidence
	case mean <= BearishChangePct:
		return models.MoodBearish, confidence
	default:
		return models.MoodNeutral, confidence
	}
}

// scanResult memoises one analysis pass over the universe
type scanResult struct {
	once     sync.Once
	results  []models.TickerAnalysis
	failures []models.TickerFailure
	err      error
}

func (s *Service) universeScan(currency string) func(ctx context.Context) *scanResult {
	r := &scanResult{}
	return func(ctx context.Context) *scanResult {
		r.once.Do(func() {
			r.results, r.failures, r.err = s.analyzeUniverse(ctx, currency)
		})
		return r
	}
}

func (s *Service) analyzeUniverse(ctx context.Context, currency string) ([]models.TickerAnalysis, []models.TickerFailure, error) {
	if len(s.opts.Universe) == 0 {
		return nil, nil, nil
	}

	var results []models.TickerAnalysis
	var failures []models.TickerFailure
	for start := 0; start < len(s.opts.Universe); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(s.opts.Universe))
		resp, err := s.analysis.Analyze(ctx, models.AnalysisRequest{
			Tickers:   s.opts.Universe[start:end],
			Timeframe: s.opts.Timeframe,
			Currency:  currency,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("universe analysis: %w", err)
		}
		results = append(results, resp.Results...)
		failures = append(failures, resp.Failures...)
	}
	return results, failures, nil
}

// buildList ranks the scanned universe for one side
func (s *Service) buildList(ctx context.Context, currency, side string, scan func(context.Context) *scanResult) (*models.RecommendationList, error) {
	r := scan(ctx)
	if r.err != nil {
		return nil, r.err
	}

	items := []models.RecommendationItem{}
	for _, res := range r.results {
		keep := res.Recommendation.IsBuy()
		if side == SubKeySell {
			keep = res.Recommendation.IsSell()
		}
		if !keep {
			continue
		}
		item := models.RecommendationItem{
			Ticker:         res.Ticker,
			CombinedScore:  res.CombinedScore,
			Recommendation: res.Recommendation,
		}
		if res.Price != nil && res.Price.Price != nil {
			item.Price = res.Price.Price.ConsensusValue
		}
		if res.Technical != nil {
			item.Signal = res.Technical.Signal
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CombinedScore != items[j].CombinedScore {
			if side == SubKeySell {
				return items[i].CombinedScore < items[j].CombinedScore
			}
			return items[i].CombinedScore > items[j].CombinedScore
		}
		return items[i].Ticker < items[j].Ticker
	})
	if len(items) > s.opts.ListSize {
		items = items[:s.opts.ListSize]
	}

	return &models.RecommendationList{
		Side:        side,
		Currency:    currency,
		Items:       items,
		Failures:    r.failures,
		GeneratedAt: s.now(),
	}, nil
}
