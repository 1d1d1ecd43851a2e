package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockNotAcquired is returned when the context ends before the lock is held
var ErrLockNotAcquired = errors.New("cache: lock not acquired")

// InMemoryLocker serializes work per key within one process
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewInMemoryLocker creates a new in-memory keyed locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until the key is free or ctx is done
func (l *InMemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
	}
}

func (l *InMemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// releaseScript deletes the key only if this holder still owns it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a SET NX based lock shared by every connector instance.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisLocker creates a distributed locker
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, keyPrefix: "connector:lock:", ttl: ttl, logger: logger}
}

// Lock retries with capped exponential backoff until the key is held or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.keyPrefix + key
	token := uuid.NewString()
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlockFunc(lockKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
		case <-time.After(backoff):
			backoff = min(backoff*2, 500*time.Millisecond)
		}
	}
}

func (l *RedisLocker) unlockFunc(lockKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled when it unlocks
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Int64()
			if err != nil {
				l.logger.Warn("Failed to release lock", zap.String("key", lockKey), zap.Error(err))
				return
			}
			if n == 0 {
				l.logger.Warn("Lock expired before release", zap.String("key", lockKey), zap.Duration("ttl", l.ttl))
			}
		})
	}
}

var (
	_ integration.Locker = (*InMemoryLocker)(nil)
	_ integration.Locker = (*RedisLocker)(nil)
)
