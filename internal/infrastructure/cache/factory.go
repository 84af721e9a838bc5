package cache

import (
	"fmt"

	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ScopeLockerFactory creates scope lockers based on configuration
type ScopeLockerFactory struct {
	redisConfig           config.RedisConfig
	sequenceConfig        config.SequenceConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ScopeLockerFactoryOption is a functional option for configuring the factory
type ScopeLockerFactoryOption func(*ScopeLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ScopeLockerFactoryOption {
	return func(f *ScopeLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory locker when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) ScopeLockerFactoryOption {
	return func(f *ScopeLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewScopeLockerFactory creates a new factory
func NewScopeLockerFactory(redisCfg config.RedisConfig, seqCfg config.SequenceConfig, opts ...ScopeLockerFactoryOption) *ScopeLockerFactory {
	f := &ScopeLockerFactory{
		redisConfig:           redisCfg,
		sequenceConfig:        seqCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLocker creates a Redis-based scope locker
func (f *ScopeLockerFactory) CreateRedisLocker() (*RedisScopeLocker, error) {
	locker, err := NewRedisScopeLocker(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.sequenceConfig.LockTTL, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis scope locker: %w", err)
	}
	return locker, nil
}

// CreateInMemoryLocker creates an in-memory scope locker.
// WARNING: in-memory locks do not serialize allocations across process
// instances; the unique indexes then surface collisions as conflicts
func (f *ScopeLockerFactory) CreateInMemoryLocker() *InMemoryScopeLocker {
	return NewInMemoryScopeLocker()
}

// CreateLocker creates the locker selected by sequence.lock_backend.
// The redis backend falls back to in-memory when Redis is unreachable and
// the fallback is allowed.
func (f *ScopeLockerFactory) CreateLocker() (shared.ScopeLocker, error) {
	if f.sequenceConfig.LockBackend != config.LockBackendRedis {
		f.logger.Info("using in-memory scope locker")
		return f.CreateInMemoryLocker(), nil
	}

	locker, err := f.CreateRedisLocker()
	if err == nil {
		f.logger.Info("using Redis scope locker", zap.String("addr", f.redisConfig.Addr()))
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for scope locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory scope locker. "+
		"Concurrent instances may then collide on new keys.",
		zap.Error(err),
	)
	return f.CreateInMemoryLocker(), nil
}
