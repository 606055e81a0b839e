package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
)

// warmCache computes market sentiment on startup so the first user query is fast.
func warmCache(ctx context.Context, marketService interfaces.MarketService, currencies []string, logger *common.Logger) {
	if os.Getenv("QUORUM_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via QUORUM_WARM_CACHE=off")
		return
	}
	if len(currencies) == 0 {
		return
	}

	start := time.Now()
	warmed := 0
	for _, cur := range currencies {
		if ctx.Err() != nil {
			break
		}
		resp, err := marketService.GetMarketSentiment(ctx, cur, false)
		if err != nil {
			logger.Warn().Err(err).Str("currency", cur).Msg("Warm cache: market sentiment failed")
			continue
		}
		warmed++
		logger.Debug().
			Str("currency", cur).
			Str("sentiment", string(resp.Sentiment)).
			Bool("degraded", resp.Degraded).
			Msg("Warm cache: market sentiment ready")
	}

	logger.Info().
		Int("currencies", warmed).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
