package app

import (
	"context"
	"time"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/metrics"
)

// reportBudgets publishes every source's budget counters until ctx ends.
func reportBudgets(ctx context.Context, budgets []interfaces.BudgetReporter, recorder *metrics.Recorder, logger *common.Logger, interval time.Duration) {
	if len(budgets) == 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	publishBudgets(budgets, recorder)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Budget reporter: stopped")
			return
		case <-ticker.C:
			publishBudgets(budgets, recorder)
		}
	}
}

func publishBudgets(budgets []interfaces.BudgetReporter, recorder *metrics.Recorder) {
	for _, b := range budgets {
		recorder.RecordBudget(b.BudgetStats())
	}
}
