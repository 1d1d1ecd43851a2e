package cache

import (
	"context"
	"time"

	"github.com/erp/connector/internal/domain/shared"
)

// InMemoryIdempotencyStore implements IdempotencyStore using an in-memory map.
// It deduplicates webhook deliveries within a single process only.
type InMemoryIdempotencyStore struct {
	entries *ttlMap
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{entries: newTTLMap(5 * time.Minute)}
}

// MarkProcessed returns true if the key was newly marked, false if it was already processed
func (s *InMemoryIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.entries.setIfAbsent(key, struct{}{}, ttl), nil
}

// IsProcessed checks if a key has already been processed
func (s *InMemoryIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	_, ok := s.entries.get(key)
	return ok, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.entries.close()
	return nil
}

// Size returns the number of entries in the store
func (s *InMemoryIdempotencyStore) Size() int {
	return s.entries.size()
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
