package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

const defaultLockPrefix = "transfer-sync:decision:"

// releaseScript deletes the key only while it still holds our owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisDecisionLock implements DecisionLock with Redis SETNX so several
// admin instances never decide the same transfer concurrently
type RedisDecisionLock struct {
	client    redis.UniversalClient
	keyPrefix string
	owner     string
}

// NewRedisDecisionLock connects to Redis and verifies the connection
func NewRedisDecisionLock(ctx context.Context, cfg RedisConfig) (*RedisDecisionLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisDecisionLockWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisDecisionLockWithClient wraps an existing client
func NewRedisDecisionLockWithClient(client redis.UniversalClient, keyPrefix string) *RedisDecisionLock {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	return &RedisDecisionLock{
		client:    client,
		keyPrefix: keyPrefix,
		owner:     uuid.NewString(),
	}
}

// Acquire sets the lock key if absent, with ttl as a crash safety net
func (l *RedisDecisionLock) Acquire(ctx context.Context, id validation.ID, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(id), l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire decision lock: %w", err)
	}
	return ok, nil
}

// Release deletes the lock key if this instance still owns it
func (l *RedisDecisionLock) Release(ctx context.Context, id validation.ID) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(id)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release decision lock: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (l *RedisDecisionLock) Close() error {
	return l.client.Close()
}

func (l *RedisDecisionLock) key(id validation.ID) string {
	return l.keyPrefix + id.String()
}

var _ validation.DecisionLock = (*RedisDecisionLock)(nil)
