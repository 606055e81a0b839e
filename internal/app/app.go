// Package app wires configuration, providers and services into a runnable
// Quorum instance.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bobmcallan/quorum/internal/cache"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/metrics"
	"github.com/bobmcallan/quorum/internal/services/analysis"
	"github.com/bobmcallan/quorum/internal/services/consensus"
	"github.com/bobmcallan/quorum/internal/services/market"
	"github.com/bobmcallan/quorum/internal/services/scoring"
	"github.com/bobmcallan/quorum/internal/signals"
	"github.com/bobmcallan/quorum/internal/storage"
)

// App holds the initialized services shared by the HTTP server and tests.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	Registry        *prometheus.Registry
	Metrics         *metrics.Recorder
	Store           interfaces.CacheStore
	Cache           *cache.Cache
	Consensus       *consensus.Service
	AnalysisService interfaces.AnalysisService
	MarketService   interfaces.MarketService
	Budgets         []interfaces.BudgetReporter
	StartupTime     time.Time

	budgetCancel context.CancelFunc
	warmCancel   context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath picks the explicit path, then QUORUM_CONFIG, then
// quorum.toml next to the binary, then the development copy.
func resolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("QUORUM_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "quorum.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/quorum.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and builds every service. configPath may be
// empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	binDir := getBinaryDir()
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger, err := common.NewLoggerFromConfig(config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewAppWithConfig(context.Background(), config, logger)
}

// NewAppWithConfig builds the services from an already loaded config.
func NewAppWithConfig(ctx context.Context, config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()
	if logger == nil {
		logger = common.NewSilentLogger()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	sources := buildSources(config.Sources, logger)
	if len(sources.quotes) == 0 {
		return nil, fmt.Errorf("no market data source enabled")
	}
	scorer := buildSentimentScorer(ctx, config.Sentiment, logger)

	aggregator, err := consensus.NewAggregator(consensusConfig(config.Consensus))
	if err != nil {
		return nil, fmt.Errorf("invalid consensus config: %w", err)
	}
	collector := consensus.NewCollector(sources.quotes, config.Analysis.GetSourceTimeout(), logger, recorder)
	consensusService := consensus.NewService(collector, aggregator, logger, recorder)

	weights, thresholds := scoringConfig(config.Scoring)
	combiner, err := scoring.NewScorer(weights, thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}

	if config.Cache.Backend == storage.BackendBadger && config.Cache.Path != "" && !filepath.IsAbs(config.Cache.Path) {
		config.Cache.Path = filepath.Join(getBinaryDir(), config.Cache.Path)
	}
	store, err := storage.NewCacheStore(logger, &config.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache store: %w", err)
	}
	recCache := cache.New(store, config.Cache.GetTTL(), logger, recorder)

	analysisService := analysis.NewService(analysis.Dependencies{
		Prices:       consensusService,
		History:      sources.history,
		News:         sources.news,
		Sentiment:    scorer,
		Social:       sources.social,
		Fundamentals: sources.fundamentals,
		Analyst:      sources.analyst,
		Computer:     signals.NewComputer(),
		Scorer:       combiner,
	}, analysis.Options{
		RequestTimeout:   config.Analysis.GetRequestTimeout(),
		MaxWorkers:       config.Analysis.MaxWorkers,
		MaxTickers:       config.Analysis.MaxTickers,
		DefaultTimeframe: config.Analysis.DefaultTimeframe,
		NewsLimit:        config.Analysis.NewsLimit,
		SocialLimit:      config.Analysis.SocialLimit,
	}, logger, recorder)

	marketService := market.NewService(consensusService, analysisService, recCache, market.Options{
		Universe:   config.Market.Universe,
		Indices:    config.Market.Indices,
		Sectors:    config.Market.Sectors,
		ListSize:   config.Market.ListSize,
		BatchSize:  config.Analysis.MaxTickers,
		Timeframe:  config.Analysis.DefaultTimeframe,
		MaxWorkers: config.Analysis.MaxWorkers,
	}, logger)

	a := &App{
		Config:          config,
		Logger:          logger,
		Registry:        registry,
		Metrics:         recorder,
		Store:           store,
		Cache:           recCache,
		Consensus:       consensusService,
		AnalysisService: analysisService,
		MarketService:   marketService,
		Budgets:         sources.budgets,
		StartupTime:     startupStart,
	}

	logger.Info().
		Int("quote_sources", len(sources.quotes)).
		Int("history_sources", len(sources.history)).
		Bool("sentiment", scorer != nil).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

func consensusConfig(c common.ConsensusConfig) consensus.Config {
	return consensus.Config{
		Bands: consensus.Bands{
			Version:     c.Version,
			NoneBelow:   c.NoneBelow,
			LowBelow:    c.LowBelow,
			MediumBelow: c.MediumBelow,
		},
		OutlierMultiplier:   c.OutlierMultiplier,
		OutlierMinDeviation: c.OutlierMinDeviation,
		ExcludeOutliers:     c.ExcludeOutliers,
		SingleSourceCap:     c.SingleSourceCap,
		ConfidenceDecay:     c.ConfidenceDecay,
	}
}

func scoringConfig(c common.ScoringConfig) (scoring.Weights, scoring.Thresholds) {
	return scoring.Weights{
			Version:     c.Version,
			News:        c.News,
			Social:      c.Social,
			Technical:   c.Technical,
			Fundamental: c.Fundamental,
			Analyst:     c.Analyst,
		}, scoring.Thresholds{
			Sell:      c.Sell,
			Hold:      c.Hold,
			Buy:       c.Buy,
			StrongBuy: c.StrongBuy,
		}
}

// Close releases all resources held by the App.
// Shutdown order: stop background loops, then close the cache store.
func (a *App) Close() {
	if a.budgetCancel != nil {
		a.budgetCancel()
		a.budgetCancel = nil
	}
	if a.warmCancel != nil {
		a.warmCancel()
		a.warmCancel = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close cache store")
		}
		a.Store = nil
	}
}

// StartWarmCache computes market sentiment for the configured currencies in
// the background so the first request is served from cache.
func (a *App) StartWarmCache() {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	a.warmCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.MarketService, a.Config.Market.WarmCurrencies, a.Logger)
	}()
}

// StartBudgetReporter publishes provider budget counters on a fixed interval.
func (a *App) StartBudgetReporter(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	a.budgetCancel = cancel
	go reportBudgets(ctx, a.Budgets, a.Metrics, a.Logger, interval)
}
