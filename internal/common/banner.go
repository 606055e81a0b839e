package common

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner to stderr.
func PrintBanner(config *Config, logger *Logger) {
	printBanner(os.Stderr, config, logger)
}

func printBanner(w io.Writer, config *Config, logger *Logger) {
	version := GetVersion()
	build := GetBuild()
	commit := GetGitCommit()
	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 64
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		`  ___  _   _  ___  ____  _   _ __  __`,
		` / _ \| | | |/ _ \|  _ \| | | |  \/  |`,
		`| | | | | | | | | | |_) | | | | |\/| |`,
		`| |_| | |_| | |_| |  _ <| |_| | |  | |`,
		` \__\_\\___/ \___/|_| \_\\___/|_|  |_|`,
	}

	fmt.Fprintf(w, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(w, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s  Multi-Source Consensus & Recommendation Engine%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "\n%s\n\n", hr)

	var sources []string
	for name, src := range map[string]SourceConfig{
		"yfinance":     config.Sources.YFinance,
		"finnhub":      config.Sources.Finnhub,
		"alphavantage": config.Sources.AlphaVantage,
		"coingecko":    config.Sources.CoinGecko,
	} {
		if src.Enabled {
			sources = append(sources, name)
		}
	}
	sort.Strings(sources)

	kvPad := 16
	kvLines := [][2]string{
		{"Version", version},
		{"Build", build},
		{"Commit", commit},
		{"Environment", config.Environment},
		{"Service URL", serviceURL},
		{"Cache", config.Cache.Backend + " (ttl " + config.Cache.GetTTL().String() + ")"},
		{"Sources", strings.Join(sources, ", ")},
		{"Sentiment", config.Sentiment.Backend},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(w, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}

	fmt.Fprintf(w, "\n%s\n\n", hr)

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("commit", commit).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Str("cache_backend", config.Cache.Backend).
		Strs("sources", sources).
		Msg("Application started")
}

// PrintShutdownBanner displays the shutdown banner to stderr.
func PrintShutdownBanner(logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 42) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  QUORUM: SHUTTING DOWN%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	logger.Info().Msg("Application shutting down")
}
