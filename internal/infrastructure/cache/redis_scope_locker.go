package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xtravels/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisScopeLocker implements ScopeLocker with SET NX PX locks, so that
// allocations are serialized across instances sharing one Redis
type RedisScopeLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	retry     time.Duration
	logger    *zap.Logger
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisScopeLocker connects to Redis and creates a scope locker
func NewRedisScopeLocker(cfg RedisConfig, ttl time.Duration, logger *zap.Logger) (*RedisScopeLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisScopeLockerWithClient(client, "", ttl, logger), nil
}

// NewRedisScopeLockerWithClient creates a locker with an existing Redis client
func NewRedisScopeLockerWithClient(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisScopeLocker {
	if keyPrefix == "" {
		keyPrefix = "sequence:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisScopeLocker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		retry:     25 * time.Millisecond,
		logger:    logger,
	}
}

// Lock polls SET NX until the lock is taken or ctx is done.
// The lock expires after the TTL if its holder never releases it.
func (l *RedisScopeLocker) Lock(ctx context.Context, scope string) (func(), error) {
	key := l.keyPrefix + scope
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, shared.ErrLockTimeout
			}
			return nil, fmt.Errorf("failed to acquire scope lock: %w", err)
		}
		if ok {
			return l.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, shared.ErrLockTimeout
		case <-ticker.C:
		}
	}
}

func (l *RedisScopeLocker) releaser(key, token string) func() {
	return func() {
		// the caller's context may already be gone when the unit of work ends
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release scope lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Close closes the Redis client
func (l *RedisScopeLocker) Close() error {
	return l.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (l *RedisScopeLocker) GetClient() *redis.Client {
	return l.client
}

// Ensure RedisScopeLocker implements ScopeLocker
var _ shared.ScopeLocker = (*RedisScopeLocker)(nil)
