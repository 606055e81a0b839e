package common

import "time"

// Freshness TTLs for cached components
const (
	FreshnessRecommendations = 15 * time.Minute
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	return IsFreshAt(updated, time.Now(), ttl)
}

// IsFreshAt reports whether updated is still within ttl at the instant now.
// An entry whose age equals the TTL is stale.
func IsFreshAt(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() || ttl <= 0 {
		return false
	}
	return now.Sub(updated) < ttl
}
