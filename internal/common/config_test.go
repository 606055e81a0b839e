package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("QUORUM_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_CacheEnvOverrides(t *testing.T) {
	t.Setenv("QUORUM_CACHE_BACKEND", "REDIS")
	t.Setenv("QUORUM_REDIS_ADDR", "redis:6380")
	t.Setenv("QUORUM_CACHE_TTL", "5m")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6380", cfg.Cache.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Cache.GetTTL())
}

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 15*time.Minute, cfg.Cache.GetTTL())
	assert.Equal(t, 5*time.Second, cfg.Analysis.GetSourceTimeout())
	assert.Equal(t, 30*time.Second, cfg.Analysis.GetRequestTimeout())
	assert.Equal(t, 10, cfg.Analysis.MaxTickers)
	assert.InDelta(t, 1.0, cfg.Scoring.News+cfg.Scoring.Social+cfg.Scoring.Technical+cfg.Scoring.Fundamental+cfg.Scoring.Analyst, 1e-9)
	assert.InDelta(t, 1.5, cfg.Sources.Finnhub.Weight, 1e-9)
	assert.True(t, cfg.Consensus.ExcludeOutliers)
	assert.NotEmpty(t, cfg.Market.Indices["USD"])
	require.NoError(t, cfg.Validate())
}

func TestConfig_GetTimeoutFallback(t *testing.T) {
	src := SourceConfig{Timeout: "not-a-duration"}
	assert.Equal(t, 5*time.Second, src.GetTimeout())

	src.Timeout = "750ms"
	assert.Equal(t, 750*time.Millisecond, src.GetTimeout())

	cache := CacheConfig{TTL: "-1m"}
	assert.Equal(t, 15*time.Minute, cache.GetTTL())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quorum.toml")
	content := `
environment = "production"

[server]
port = 9191

[cache]
backend = "badger"
ttl = "10m"

[consensus]
medium_below = 0.2
exclude_outliers = false

[sources.finnhub]
weight = 2.0

[[market.indices.CHF]]
symbol = "^SSMI"
name = "SMI"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(filepath.Join(dir, "missing.toml"), path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.GetTTL())
	assert.InDelta(t, 0.2, cfg.Consensus.MediumBelow, 1e-9)
	assert.InDelta(t, 0.03, cfg.Consensus.NoneBelow, 1e-9, "unset keys keep their defaults")
	assert.False(t, cfg.Consensus.ExcludeOutliers)
	assert.InDelta(t, 2.0, cfg.Sources.Finnhub.Weight, 1e-9)
	assert.Equal(t, "https://finnhub.io/api/v1", cfg.Sources.Finnhub.BaseURL)
	require.Len(t, cfg.Market.Indices["CHF"], 1)
	assert.Equal(t, "^SSMI", cfg.Market.Indices["CHF"][0].Symbol)
}

func TestConfig_ValidateRejectsSubSecondTTL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Cache.TTL = "500ms"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.ttl")

	cfg.Cache.TTL = "1s"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	t.Setenv("QUORUM_CACHE_BACKEND", "memcached")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memcached")
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "env-key")

	key, err := ResolveAPIKey("finnhub_api_key", "config-key")
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)

	t.Setenv("ALPHAVANTAGE_API_KEY", "")
	t.Setenv("ALPHA_VANTAGE_API_KEY", "")
	t.Setenv("QUORUM_ALPHAVANTAGE_API_KEY", "")
	key, err = ResolveAPIKey("alphavantage_api_key", "config-key")
	require.NoError(t, err)
	assert.Equal(t, "config-key", key)

	_, err = ResolveAPIKey("unknown_api_key", "")
	assert.Error(t, err)
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "quorum.toml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.InDelta(t, 2.0, cfg.Sources.YFinance.RateLimit, 1e-9)
	assert.Equal(t, 25, cfg.Sources.AlphaVantage.DailyQuota)
	assert.Equal(t, "bitcoin", cfg.Sources.CoinIDs["BTC"])
	assert.Equal(t, []string{"USD"}, cfg.Market.WarmCurrencies)
	// Indices come from the defaults when the file does not set them
	assert.NotEmpty(t, cfg.Market.Indices["EUR"])
}
