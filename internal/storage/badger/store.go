// Package badger provides a BadgerHold-backed cache store that survives restarts.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
)

// CacheRecord is one stored value. A zero ExpiresAt never expires.
type CacheRecord struct {
	Key       string `badgerhold:"key"`
	Value     []byte
	ExpiresAt time.Time
}

// Store wraps a BadgerHold database connection.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
	now    func() time.Time
}

var _ interfaces.CacheStore = (*Store)(nil)

// NewStore creates a new BadgerHold store at the given directory path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	if logger == nil {
		logger = common.NewSilentLogger()
	}
	logger.Debug().Str("path", path).Msg("BadgerHold cache store opened")

	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock overrides the time source used for expiry
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	var rec CacheRecord
	if err := s.db.Get(key, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key '%s': %w", key, err)
	}

	if !rec.ExpiresAt.IsZero() && !s.now().Before(rec.ExpiresAt) {
		if err := s.db.Delete(key, CacheRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Str("key", key).Err(err).Msg("Failed to purge expired cache record")
		}
		return nil, false, nil
	}
	return rec.Value, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	rec := CacheRecord{Key: key, Value: value}
	if ttl > 0 {
		rec.ExpiresAt = s.now().Add(ttl)
	}
	if err := s.db.Upsert(key, &rec); err != nil {
		return fmt.Errorf("failed to set key '%s': %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Delete(key, CacheRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete key '%s': %w", key, err)
	}
	return nil
}

// Keys lists every stored key, expired records included
func (s *Store) Keys() ([]string, error) {
	var records []CacheRecord
	if err := s.db.Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key
	}
	return keys, nil
}

// Close closes the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
