package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is one (key, sub_key) cell of the recommendation cache.
// Entries are replaced wholesale; sub-keys never share state.
type CacheEntry struct {
	Key        string          `json:"key"`
	SubKey     string          `json:"sub_key"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
}

// TTL returns the entry's time-to-live
func (e *CacheEntry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}
