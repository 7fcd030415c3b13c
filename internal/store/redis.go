package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, oops.In("redis").With("addr", addr).Wrapf(err, "ping")
	}
	return rdb, nil
}

// RedisLoginLimiter counts login attempts per email in a fixed window.
type RedisLoginLimiter struct {
	rdb         redis.Cmdable
	maxAttempts int64
	window      time.Duration
}

func NewRedisLoginLimiter(rdb redis.Cmdable, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{rdb: rdb, maxAttempts: int64(maxAttempts), window: window}
}

func loginKey(email string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(email))
}

// Allow records an attempt and reports whether it is within the limit.
func (l *RedisLoginLimiter) Allow(ctx context.Context, email string) (bool, error) {
	key := loginKey(email)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return true, oops.In("redis").Wrapf(err, "incr attempts")
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return true, oops.In("redis").Wrapf(err, "expire attempts")
		}
	}
	return n <= l.maxAttempts, nil
}

// Reset clears the attempt counter after a successful login.
func (l *RedisLoginLimiter) Reset(ctx context.Context, email string) error {
	if err := l.rdb.Del(ctx, loginKey(email)).Err(); err != nil {
		return oops.In("redis").Wrapf(err, "reset attempts")
	}
	return nil
}
