package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the coordination stores of the connector
type Stores struct {
	State       integration.StateStore
	Locker      integration.Locker
	Idempotency shared.IdempotencyStore

	client  redis.UniversalClient
	closers []func() error
}

// Ping checks the Redis connection when one is in use
func (s *Stores) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Close releases background goroutines and the Redis client
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewRedisClient creates a Redis client and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewStores builds the state store, locker and delivery dedupe store selected
// by the connector configuration. Redis is dialled only if a backend needs it.
func NewStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	s := &Stores{}
	useRedis := cfg.Connector.StateBackend == "redis" || cfg.Connector.LockBackend == "redis"

	if useRedis {
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		s.client = client
		s.closers = append(s.closers, client.Close)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	switch cfg.Connector.StateBackend {
	case "redis":
		s.State = NewRedisStateStore(s.client, "")
		s.Idempotency = NewRedisIdempotencyStore(s.client, "")
	default:
		mem := NewInMemoryStateStore()
		s.State = mem
		s.closers = append(s.closers, mem.Close)
		idem := NewInMemoryIdempotencyStore()
		s.Idempotency = idem
		s.closers = append(s.closers, idem.Close)
	}

	switch cfg.Connector.LockBackend {
	case "redis":
		s.Locker = NewRedisLocker(s.client, cfg.Connector.LockTTL, logger.Named("lock"))
	default:
		s.Locker = NewInMemoryLocker()
	}

	logger.Info("Connector stores ready",
		zap.String("state_backend", cfg.Connector.StateBackend),
		zap.String("lock_backend", cfg.Connector.LockBackend),
	)
	return s, nil
}
