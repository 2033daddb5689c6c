package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLoginLimiter counts attempts per key in fixed windows.
type RedisLoginLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
}

func NewRedisLoginLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLoginLimiter) key(k string) string {
	return "auth:login_attempts:" + k
}

func (l *RedisLoginLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.maxAttempts <= 0 {
		return true, nil
	}

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, l.key(key))
		pipe.ExpireNX(ctx, l.key(key), l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(l.maxAttempts), nil
}

func (l *RedisLoginLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}
