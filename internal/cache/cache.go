// Package cache provides the TTL recommendation cache keyed by (key, sub-key)
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/metrics"
	"github.com/bobmcallan/quorum/internal/models"
)

// ComputeFunc produces a fresh payload for a cache cell
type ComputeFunc func(ctx context.Context) (any, error)

// Cacheable is implemented by payloads that can opt out of storage. A
// payload reporting false is returned to the caller but not written, so the
// next lookup recomputes it.
type Cacheable interface {
	Cacheable() bool
}

// Cache stores JSON payloads per (key, sub-key). Sub-keys are independent
// cells: writing one never touches another.
type Cache struct {
	store    interfaces.CacheStore
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	logger   *common.Logger
	recorder *metrics.Recorder
}

// New creates a cache over store. A non-positive ttl uses the 15 minute default.
func New(store interfaces.CacheStore, ttl time.Duration, logger *common.Logger, recorder *metrics.Recorder) *Cache {
	if ttl <= 0 {
		ttl = common.FreshnessRecommendations
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
		recorder: recorder,
	}
}

// SetClock overrides the time source used for CreatedAt and freshness
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// TTL returns the entry lifetime
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// StorageKey is the backing-store key for a cell
func StorageKey(key, subKey string) string {
	return key + "|" + subKey
}

// Entry returns the fresh entry for a cell, if any
func (c *Cache) Entry(ctx context.Context, key, subKey string) (*models.CacheEntry, bool, error) {
	raw, found, err := c.store.Get(ctx, StorageKey(key, subKey))
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s|%s: %w", key, subKey, err)
	}
	if !found {
		return nil, false, nil
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn().Str("key", key).Str("sub_key", subKey).Err(err).Msg("Discarding unreadable cache entry")
		return nil, false, nil
	}
	if !common.IsFreshAt(entry.CreatedAt, c.now(), entry.TTL()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Get decodes a fresh cell into dest and reports whether it was a hit
func (c *Cache) Get(ctx context.Context, key, subKey string, dest any) (bool, error) {
	entry, found, err := c.Entry(ctx, key, subKey)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		return false, fmt.Errorf("cache decode %s|%s: %w", key, subKey, err)
	}
	return true, nil
}

// Put replaces a cell with payload, stamped now
func (c *Cache) Put(ctx context.Context, key, subKey string, payload any) error {
	_, err := c.put(ctx, key, subKey, payload)
	return err
}

// newEntry stamps payload now. The TTL is rounded up to whole seconds so a
// sub-second lifetime is not recorded as zero.
func (c *Cache) newEntry(key, subKey string, payload any) (*models.CacheEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cache encode %s|%s: %w", key, subKey, err)
	}
	return &models.CacheEntry{
		Key:        key,
		SubKey:     subKey,
		Payload:    data,
		CreatedAt:  c.now(),
		TTLSeconds: int64((c.ttl + time.Second - 1) / time.Second),
	}, nil
}

func (c *Cache) put(ctx context.Context, key, subKey string, payload any) (*models.CacheEntry, error) {
	entry, err := c.newEntry(key, subKey, payload)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("cache encode %s|%s: %w", key, subKey, err)
	}
	if err := c.store.Set(ctx, StorageKey(key, subKey), raw, c.ttl); err != nil {
		return nil, fmt.Errorf("cache set %s|%s: %w", key, subKey, err)
	}
	return entry, nil
}

// Invalidate removes a cell
func (c *Cache) Invalidate(ctx context.Context, key, subKey string) error {
	if err := c.store.Delete(ctx, StorageKey(key, subKey)); err != nil {
		return fmt.Errorf("cache delete %s|%s: %w", key, subKey, err)
	}
	return nil
}

// GetOrCompute decodes the cell into dest, computing and storing it on a
// miss. force skips the lookup and always recomputes. A Cacheable payload
// that reports false is returned without being stored. Concurrent callers
// for the same cell share one computation. It returns the entry's creation
// time and whether it was served from cache.
func (c *Cache) GetOrCompute(ctx context.Context, key, subKey string, force bool, dest any, compute ComputeFunc) (time.Time, bool, error) {
	flight := StorageKey(key, subKey)
	if force {
		flight += "#refresh"
	}

	type outcome struct {
		entry *models.CacheEntry
		hit   bool
	}

	v, err, _ := c.group.Do(flight, func() (any, error) {
		if !force {
			entry, found, err := c.Entry(ctx, key, subKey)
			if err != nil {
				c.logger.Warn().Str("key", key).Str("sub_key", subKey).Err(err).Msg("Cache lookup failed, recomputing")
			} else if found {
				return outcome{entry: entry, hit: true}, nil
			}
		}

		payload, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if p, ok := payload.(Cacheable); ok && !p.Cacheable() {
			c.logger.Debug().Str("key", key).Str("sub_key", subKey).Msg("Payload not cacheable, skipping store")
			entry, err := c.newEntry(key, subKey, payload)
			if err != nil {
				return nil, err
			}
			return outcome{entry: entry}, nil
		}
		entry, err := c.put(ctx, key, subKey, payload)
		if err != nil {
			return nil, err
		}
		return outcome{entry: entry}, nil
	})
	if err != nil {
		return time.Time{}, false, err
	}

	o := v.(outcome)
	switch {
	case o.hit:
		c.recorder.RecordCacheLookup(subKey, "hit")
	case force:
		c.recorder.RecordCacheLookup(subKey, "refresh")
	default:
		c.recorder.RecordCacheLookup(subKey, "miss")
	}
	c.logger.Debug().Str("key", key).Str("sub_key", subKey).Bool("hit", o.hit).Bool("force", force).Msg("Cache resolved")

	if err := json.Unmarshal(o.entry.Payload, dest); err != nil {
		return time.Time{}, false, fmt.Errorf("cache decode %s|%s: %w", key, subKey, err)
	}
	return o.entry.CreatedAt, o.hit, nil
}
