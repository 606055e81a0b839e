// Package shared holds plumbing common to every provider client: the local
// rate budget, the retrying transport and HTTP status mapping.
package shared

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/quorum/internal/models"
)

// Budget is a provider's local request budget: a token bucket sized to the
// published per-second quota plus an optional fixed daily window. Allow never
// blocks.
type Budget struct {
	source     string
	limiter    *rate.Limiter
	dailyQuota int64

	// window packs (UTC day << 32 | used) so the day rollover and the
	// increment happen in one compare-and-swap.
	window   atomic.Int64
	allowed  atomic.Int64
	rejected atomic.Int64

	now func() time.Time
}

// NewBudget creates a budget. perSecond <= 0 means unlimited; dailyQuota 0
// disables the daily window.
func NewBudget(source string, perSecond float64, burst int, dailyQuota int) *Budget {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Budget{
		source:     source,
		limiter:    rate.NewLimiter(limit, burst),
		dailyQuota: int64(dailyQuota),
		now:        time.Now,
	}
}

// Allow consumes one unit of budget, reporting false when the budget is
// exhausted. Both outcomes are counted.
func (b *Budget) Allow() bool {
	now := b.now()
	if !b.limiter.AllowN(now, 1) || !b.takeDaily(now) {
		b.rejected.Add(1)
		return false
	}
	b.allowed.Add(1)
	return true
}

func (b *Budget) takeDaily(now time.Time) bool {
	if b.dailyQuota <= 0 {
		return true
	}
	day := now.UTC().Unix() / 86400
	for {
		cur := b.window.Load()
		curDay, used := cur>>32, cur&0xffffffff
		if curDay != day {
			used = 0
		}
		if used >= b.dailyQuota {
			return false
		}
		if b.window.CompareAndSwap(cur, day<<32|(used+1)) {
			return true
		}
	}
}

// Stats returns a snapshot of the counters
func (b *Budget) Stats() models.BudgetStats {
	cur := b.window.Load()
	used := cur & 0xffffffff
	if cur>>32 != b.now().UTC().Unix()/86400 {
		used = 0
	}
	return models.BudgetStats{
		Source:     b.source,
		Allowed:    b.allowed.Load(),
		Rejected:   b.rejected.Load(),
		DailyUsed:  used,
		DailyQuota: b.dailyQuota,
	}
}

// SetClock replaces the budget's clock; used by tests.
func (b *Budget) SetClock(now func() time.Time) {
	b.now = now
}
