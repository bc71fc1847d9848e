package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check
var _ Locker = (*RedisLocker)(nil)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lock reacquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a distributed Locker built on SET NX PX.
type RedisLocker struct {
	client        *redis.Client
	logger        *zap.Logger
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisLocker creates a Redis-backed Locker. The TTL bounds how long a
// crashed holder can block other writers.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{
		client:        client,
		logger:        logger.Named("RedisLocker"),
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	release := func() {
		// Best effort: the TTL covers a failed release.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lock", zap.String("key", redisKey), zap.Error(err))
		}
	}
	return release, nil
}
