package app

import (
	"context"
	"net/http"

	"github.com/bobmcallan/quorum/internal/clients/alphavantage"
	"github.com/bobmcallan/quorum/internal/clients/coingecko"
	"github.com/bobmcallan/quorum/internal/clients/finnhub"
	"github.com/bobmcallan/quorum/internal/clients/gemini"
	"github.com/bobmcallan/quorum/internal/clients/sentiment"
	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/clients/stocktwits"
	"github.com/bobmcallan/quorum/internal/clients/yfinance"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
)

// sourceSet is every provider the pipeline can draw on. Optional sources
// are left nil when disabled or missing an API key.
type sourceSet struct {
	quotes       []interfaces.MarketDataSource
	history      []interfaces.HistorySource
	news         interfaces.NewsSource
	social       interfaces.SocialSource
	fundamentals interfaces.FundamentalsSource
	analyst      interfaces.AnalystSource
	budgets      []interfaces.BudgetReporter
}

func httpClientFor(cfg common.SourceConfig) *http.Client {
	return shared.NewHTTPClient(cfg.GetTimeout(), cfg.Retries)
}

func budgetFor(id string, cfg common.SourceConfig) *shared.Budget {
	return shared.NewBudget(id, cfg.RateLimit, cfg.Burst, cfg.DailyQuota)
}

// buildSources creates the provider clients from the [sources] section.
// History sources are ordered by preference: Yahoo first, Alpha Vantage as
// the fallback.
func buildSources(cfg common.SourcesConfig, logger *common.Logger) sourceSet {
	var set sourceSet

	if c := cfg.YFinance; c.Enabled {
		client := yfinance.NewClient(
			yfinance.WithBaseURL(c.BaseURL),
			yfinance.WithLogger(logger),
			yfinance.WithHTTPClient(httpClientFor(c)),
			yfinance.WithBudget(budgetFor(yfinance.SourceID, c)),
			yfinance.WithWeight(c.Weight, c.Priority),
		)
		set.quotes = append(set.quotes, client)
		set.history = append(set.history, client)
		set.budgets = append(set.budgets, client)
	}

	if c := cfg.Finnhub; c.Enabled {
		key, err := common.ResolveAPIKey("finnhub_api_key", c.APIKey)
		if err != nil {
			logger.Warn().Msg("Finnhub API key not configured - news, fundamentals and analyst data unavailable")
		} else {
			client := finnhub.NewClient(key,
				finnhub.WithBaseURL(c.BaseURL),
				finnhub.WithLogger(logger),
				finnhub.WithHTTPClient(httpClientFor(c)),
				finnhub.WithBudget(budgetFor(finnhub.SourceID, c)),
				finnhub.WithWeight(c.Weight, c.Priority),
			)
			set.quotes = append(set.quotes, client)
			set.news = client
			set.fundamentals = client
			set.analyst = client
			set.budgets = append(set.budgets, client)
		}
	}

	if c := cfg.AlphaVantage; c.Enabled {
		key, err := common.ResolveAPIKey("alphavantage_api_key", c.APIKey)
		if err != nil {
			logger.Warn().Msg("Alpha Vantage API key not configured - source disabled")
		} else {
			client := alphavantage.NewClient(key,
				alphavantage.WithBaseURL(c.BaseURL),
				alphavantage.WithLogger(logger),
				alphavantage.WithHTTPClient(httpClientFor(c)),
				alphavantage.WithBudget(budgetFor(alphavantage.SourceID, c)),
				alphavantage.WithWeight(c.Weight, c.Priority),
			)
			set.quotes = append(set.quotes, client)
			set.history = append(set.history, client)
			set.budgets = append(set.budgets, client)
		}
	}

	if c := cfg.CoinGecko; c.Enabled {
		opts := []coingecko.ClientOption{
			coingecko.WithBaseURL(c.BaseURL),
			coingecko.WithLogger(logger),
			coingecko.WithHTTPClient(httpClientFor(c)),
			coingecko.WithBudget(budgetFor(coingecko.SourceID, c)),
			coingecko.WithWeight(c.Weight, c.Priority),
		}
		// The public tier works without a key
		if key, err := common.ResolveAPIKey("coingecko_api_key", c.APIKey); err == nil {
			opts = append(opts, coingecko.WithAPIKey(key))
		}
		client := coingecko.NewClient(cfg.CoinIDs, opts...)
		set.quotes = append(set.quotes, client)
		set.budgets = append(set.budgets, client)
	}

	if c := cfg.StockTwits; c.Enabled {
		client := stocktwits.NewClient(
			stocktwits.WithBaseURL(c.BaseURL),
			stocktwits.WithLogger(logger),
			stocktwits.WithHTTPClient(httpClientFor(c)),
			stocktwits.WithBudget(budgetFor(stocktwits.SourceID, c)),
		)
		set.social = client
		set.budgets = append(set.budgets, client)
	}

	return set
}

// buildSentimentScorer returns the configured text classifier, or nil when
// the backend is "none" or cannot be initialised. A nil scorer leaves the
// news factor at neutral.
func buildSentimentScorer(ctx context.Context, cfg common.SentimentConfig, logger *common.Logger) interfaces.SentimentScorer {
	switch cfg.Backend {
	case "http":
		if cfg.URL == "" {
			logger.Warn().Msg("Sentiment URL not configured - news sentiment unavailable")
			return nil
		}
		return sentiment.NewClient(cfg.URL,
			sentiment.WithLogger(logger),
			sentiment.WithHTTPClient(shared.NewHTTPClient(cfg.GetTimeout(), 1)),
		)

	case "gemini":
		key, err := common.ResolveAPIKey("gemini_api_key", cfg.APIKey)
		if err != nil {
			logger.Warn().Msg("Gemini API key not configured - news sentiment unavailable")
			return nil
		}
		client, err := gemini.NewClient(ctx, key,
			gemini.WithLogger(logger),
			gemini.WithModel(cfg.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client")
			return nil
		}
		return client
	}

	return nil
}
