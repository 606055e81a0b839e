// Package common provides shared utilities for Quorum
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Quorum
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Cache       CacheConfig     `toml:"cache"`
	Sources     SourcesConfig   `toml:"sources"`
	Sentiment   SentimentConfig `toml:"sentiment"`
	Consensus   ConsensusConfig `toml:"consensus"`
	Scoring     ScoringConfig   `toml:"scoring"`
	Analysis    AnalysisConfig  `toml:"analysis"`
	Market      MarketConfig    `toml:"market"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// CacheConfig selects and configures the recommendation cache backing store
type CacheConfig struct {
	Backend string      `toml:"backend"` // "memory", "badger" or "redis"
	TTL     string      `toml:"ttl"`
	Path    string      `toml:"path"` // badger directory
	Redis   RedisConfig `toml:"redis"`
}

// GetTTL parses and returns the cache TTL
func (c *CacheConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// SourcesConfig holds per-provider configuration
type SourcesConfig struct {
	YFinance     SourceConfig      `toml:"yfinance"`
	Finnhub      SourceConfig      `toml:"finnhub"`
	AlphaVantage SourceConfig      `toml:"alphavantage"`
	CoinGecko    SourceConfig      `toml:"coingecko"`
	StockTwits   SourceConfig      `toml:"stocktwits"`
	CoinIDs      map[string]string `toml:"coin_ids"` // symbol -> CoinGecko coin id
}

// SourceConfig holds one provider's API and budget configuration.
// RateLimit is requests per second; DailyQuota of 0 disables the daily window.
type SourceConfig struct {
	Enabled    bool    `toml:"enabled"`
	BaseURL    string  `toml:"base_url"`
	APIKey     string  `toml:"api_key"`
	Weight     float64 `toml:"weight"`
	Priority   int     `toml:"priority"`
	RateLimit  float64 `toml:"rate_limit"`
	Burst      int     `toml:"burst"`
	DailyQuota int     `toml:"daily_quota"`
	Retries    int     `toml:"retries"`
	Timeout    string  `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *SourceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// SentimentConfig selects the sentiment scoring backend
type SentimentConfig struct {
	Backend string `toml:"backend"` // "http", "gemini" or "none"
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *SentimentConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// ConsensusConfig holds discrepancy bands, outlier policy and confidence tuning
type ConsensusConfig struct {
	Version             string  `toml:"version"`
	NoneBelow           float64 `toml:"none_below"`
	LowBelow            float64 `toml:"low_below"`
	MediumBelow         float64 `toml:"medium_below"`
	OutlierMultiplier   float64 `toml:"outlier_multiplier"`
	OutlierMinDeviation float64 `toml:"outlier_min_deviation"`
	ExcludeOutliers     bool    `toml:"exclude_outliers"`
	SingleSourceCap     float64 `toml:"single_source_cap"`
	ConfidenceDecay     float64 `toml:"confidence_decay"`
}

// ScoringConfig holds factor weights and recommendation thresholds
type ScoringConfig struct {
	Version     string  `toml:"version"`
	News        float64 `toml:"news"`
	Social      float64 `toml:"social"`
	Technical   float64 `toml:"technical"`
	Fundamental float64 `toml:"fundamental"`
	Analyst     float64 `toml:"analyst"`
	Sell        float64 `toml:"sell"`
	Hold        float64 `toml:"hold"`
	Buy         float64 `toml:"buy"`
	StrongBuy   float64 `toml:"strong_buy"`
}

// AnalysisConfig holds orchestrator limits
type AnalysisConfig struct {
	SourceTimeout    string `toml:"source_timeout"`
	RequestTimeout   string `toml:"request_timeout"`
	MaxWorkers       int    `toml:"max_workers"`
	MaxTickers       int    `toml:"max_tickers"`
	DefaultTimeframe string `toml:"default_timeframe"`
	NewsLimit        int    `toml:"news_limit"`
	SocialLimit      int    `toml:"social_limit"`
}

// GetSourceTimeout returns the per-source fetch timeout
func (c *AnalysisConfig) GetSourceTimeout() time.Duration {
	d, err := time.ParseDuration(c.SourceTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GetRequestTimeout returns the overall per-request deadline
func (c *AnalysisConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// MarketConfig holds market-sentiment inputs
type MarketConfig struct {
	Universe []string                 `toml:"universe"`
	Sectors  []IndexConfig            `toml:"sectors"`
	Indices  map[string][]IndexConfig `toml:"indices"` // currency -> indices
	ListSize int                      `toml:"list_size"`

	// WarmCurrencies are computed once at startup so the first request hits the cache
	WarmCurrencies []string `toml:"warm_currencies"`
}

// IndexConfig names one tracked index or sector instrument
type IndexConfig struct {
	Symbol string `toml:"symbol"`
	Name   string `toml:"name"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Outputs:  []string{"console"},
			FilePath: "./logs/quorum.log",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     "15m",
			Path:    "data/cache",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "quorum:",
			},
		},
		Sources: SourcesConfig{
			YFinance: SourceConfig{
				Enabled:   true,
				BaseURL:   "https://query1.finance.yahoo.com",
				Weight:    1.0,
				Priority:  3,
				RateLimit: 2,
				Burst:     5,
				Retries:   1,
				Timeout:   "5s",
			},
			Finnhub: SourceConfig{
				Enabled:   true,
				BaseURL:   "https://finnhub.io/api/v1",
				Weight:    1.5,
				Priority:  1,
				RateLimit: 1,
				Burst:     30,
				Retries:   1,
				Timeout:   "5s",
			},
			AlphaVantage: SourceConfig{
				Enabled:    true,
				BaseURL:    "https://www.alphavantage.co",
				Weight:     1.5,
				Priority:   2,
				RateLimit:  5.0 / 60.0,
				Burst:      5,
				DailyQuota: 25,
				Retries:    1,
				Timeout:    "5s",
			},
			CoinGecko: SourceConfig{
				Enabled:   true,
				BaseURL:   "https://api.coingecko.com/api/v3",
				Weight:    1.0,
				Priority:  2,
				RateLimit: 0.5,
				Burst:     10,
				Retries:   1,
				Timeout:   "5s",
			},
			StockTwits: SourceConfig{
				Enabled:   true,
				BaseURL:   "https://api.stocktwits.com/api/2",
				Weight:    1.0,
				RateLimit: 3,
				Burst:     10,
				Retries:   1,
				Timeout:   "5s",
			},
			CoinIDs: map[string]string{
				"BTC": "bitcoin",
				"ETH": "ethereum",
				"SOL": "solana",
				"ADA": "cardano",
				"XRP": "ripple",
			},
		},
		Sentiment: SentimentConfig{
			Backend: "http",
			URL:     "http://localhost:8000",
			Model:   "gemini-2.0-flash",
			Timeout: "10s",
		},
		Consensus: ConsensusConfig{
			Version:             "2024.1",
			NoneBelow:           0.03,
			LowBelow:            0.07,
			MediumBelow:         0.15,
			OutlierMultiplier:   2.0,
			OutlierMinDeviation: 0.03,
			ExcludeOutliers:     true,
			SingleSourceCap:     0.5,
			ConfidenceDecay:     0.10,
		},
		Scoring: ScoringConfig{
			Version:     "2024.1",
			News:        0.15,
			Social:      0.10,
			Technical:   0.35,
			Fundamental: 0.30,
			Analyst:     0.10,
			Sell:        0.2,
			Hold:        0.4,
			Buy:         0.6,
			StrongBuy:   0.8,
		},
		Analysis: AnalysisConfig{
			SourceTimeout:    "5s",
			RequestTimeout:   "30s",
			MaxWorkers:       4,
			MaxTickers:       10,
			DefaultTimeframe: "6mo",
			NewsLimit:        10,
			SocialLimit:      30,
		},
		Market: MarketConfig{
			Universe:       []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA", "JPM", "XOM", "UNH"},
			ListSize:       5,
			WarmCurrencies: []string{"USD"},
			Sectors: []IndexConfig{
				{Symbol: "XLK", Name: "Technology"},
				{Symbol: "XLF", Name: "Financials"},
				{Symbol: "XLV", Name: "Health Care"},
				{Symbol: "XLE", Name: "Energy"},
				{Symbol: "XLY", Name: "Consumer Discretionary"},
				{Symbol: "XLI", Name: "Industrials"},
				{Symbol: "XLP", Name: "Consumer Staples"},
				{Symbol: "XLU", Name: "Utilities"},
			},
			Indices: map[string][]IndexConfig{
				"USD": {
					{Symbol: "^GSPC", Name: "S&P 500"},
					{Symbol: "^IXIC", Name: "NASDAQ Composite"},
					{Symbol: "^DJI", Name: "Dow Jones Industrial Average"},
				},
				"EUR": {
					{Symbol: "^STOXX50E", Name: "Euro Stoxx 50"},
					{Symbol: "^GDAXI", Name: "DAX"},
				},
				"GBP": {{Symbol: "^FTSE", Name: "FTSE 100"}},
				"JPY": {{Symbol: "^N225", Name: "Nikkei 225"}},
				"AUD": {{Symbol: "^AXJO", Name: "S&P/ASX 200"}},
				"INR": {{Symbol: "^NSEI", Name: "Nifty 50"}},
				"CRYPTO": {
					{Symbol: "BTC-USD", Name: "Bitcoin"},
					{Symbol: "ETH-USD", Name: "Ethereum"},
				},
			},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("QUORUM_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("QUORUM_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("QUORUM_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("QUORUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("QUORUM_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = strings.ToLower(backend)
	}
	if path := os.Getenv("QUORUM_CACHE_PATH"); path != "" {
		config.Cache.Path = path
	}
	if ttl := os.Getenv("QUORUM_CACHE_TTL"); ttl != "" {
		config.Cache.TTL = ttl
	}
	if addr := os.Getenv("QUORUM_REDIS_ADDR"); addr != "" {
		config.Cache.Redis.Addr = addr
	}

	if v := os.Getenv("QUORUM_SENTIMENT_BACKEND"); v != "" {
		config.Sentiment.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("QUORUM_SENTIMENT_URL"); v != "" {
		config.Sentiment.URL = v
	}
}

// Validate checks values that would otherwise fail late at wiring time
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "badger", "redis":
	default:
		return fmt.Errorf("invalid cache backend %q (want memory, badger or redis)", c.Cache.Backend)
	}

	switch c.Sentiment.Backend {
	case "http", "gemini", "none":
	default:
		return fmt.Errorf("invalid sentiment backend %q (want http, gemini or none)", c.Sentiment.Backend)
	}

	if d, err := time.ParseDuration(c.Cache.TTL); err == nil && d > 0 && d < time.Second {
		return fmt.Errorf("cache.ttl %s is below the 1s minimum", c.Cache.TTL)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Analysis.MaxTickers <= 0 {
		return fmt.Errorf("analysis.max_tickers must be positive")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves an API key from environment or fallback
func ResolveAPIKey(name string, fallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"finnhub_api_key":      {"FINNHUB_API_KEY", "QUORUM_FINNHUB_API_KEY"},
		"alphavantage_api_key": {"ALPHAVANTAGE_API_KEY", "ALPHA_VANTAGE_API_KEY", "QUORUM_ALPHAVANTAGE_API_KEY"},
		"coingecko_api_key":    {"COINGECKO_API_KEY", "QUORUM_COINGECKO_API_KEY"},
		"gemini_api_key":       {"GEMINI_API_KEY", "QUORUM_GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}
