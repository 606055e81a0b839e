package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBanner_ListsEnabledSources(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sources.CoinGecko.Enabled = false

	var buf bytes.Buffer
	printBanner(&buf, cfg, NewSilentLogger())

	out := buf.String()
	assert.Contains(t, out, "alphavantage, finnhub, yfinance")
	assert.NotContains(t, out, "coingecko")
	assert.Contains(t, out, "memory (ttl 15m0s)")
	assert.Contains(t, out, "http://0.0.0.0:8080")
}
