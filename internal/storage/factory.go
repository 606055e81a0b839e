// Package storage provides the recommendation cache backing stores.
package storage

import (
	"fmt"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/storage/badger"
	"github.com/bobmcallan/quorum/internal/storage/redis"
)

// Backend type constants.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// NewCacheStore creates a backing store based on the configuration.
// Supported backends: "memory" (default), "badger", "redis".
func NewCacheStore(logger *common.Logger, config *common.CacheConfig) (interfaces.CacheStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendBadger:
		return badger.NewStore(logger, config.Path)

	case BackendRedis:
		return redis.NewStore(logger, redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
			Prefix:   config.Redis.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, badger, redis)", backend)
	}
}
