package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

const defaultStatePrefix = "connector:oauth:state:"

// InMemoryStateStore keeps authorization attempts in process memory
type InMemoryStateStore struct {
	entries *ttlMap
}

// NewInMemoryStateStore creates a new in-memory state store
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{entries: newTTLMap(time.Minute)}
}

// Issue stores the attempt under its state
func (s *InMemoryStateStore) Issue(ctx context.Context, attempt integration.AuthorizationAttempt, ttl time.Duration) error {
	if attempt.State == "" {
		return integration.ErrStateNotFound
	}
	if !s.entries.setIfAbsent(attempt.State, attempt, ttl) {
		return integration.ErrStateConflict
	}
	return nil
}

// Consume removes and returns the attempt
func (s *InMemoryStateStore) Consume(ctx context.Context, state string) (*integration.AuthorizationAttempt, error) {
	v, ok := s.entries.take(state)
	if !ok {
		return nil, integration.ErrStateNotFound
	}
	attempt := v.(integration.AuthorizationAttempt)
	return &attempt, nil
}

// Close stops the cleanup goroutine
func (s *InMemoryStateStore) Close() error {
	s.entries.close()
	return nil
}

// RedisStateStore keeps authorization attempts in Redis so that the callback
// may land on a different instance than the one that issued the state.
type RedisStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStateStore creates a state store with an existing Redis client
func NewRedisStateStore(client redis.UniversalClient, keyPrefix string) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = defaultStatePrefix
	}
	return &RedisStateStore{client: client, keyPrefix: keyPrefix}
}

// Issue stores the attempt with SET NX
func (s *RedisStateStore) Issue(ctx context.Context, attempt integration.AuthorizationAttempt, ttl time.Duration) error {
	if attempt.State == "" {
		return integration.ErrStateNotFound
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode authorization attempt: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.keyPrefix+attempt.State, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	if !ok {
		return integration.ErrStateConflict
	}
	return nil
}

// Consume atomically reads and deletes the attempt with GETDEL
func (s *RedisStateStore) Consume(ctx context.Context, state string) (*integration.AuthorizationAttempt, error) {
	if state == "" {
		return nil, integration.ErrStateNotFound
	}
	payload, err := s.client.GetDel(ctx, s.keyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, integration.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to consume state: %w", err)
	}
	var attempt integration.AuthorizationAttempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return nil, fmt.Errorf("failed to decode authorization attempt: %w", err)
	}
	return &attempt, nil
}

var (
	_ integration.StateStore = (*InMemoryStateStore)(nil)
	_ integration.StateStore = (*RedisStateStore)(nil)
)
