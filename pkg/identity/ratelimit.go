package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds failed bearer-resolution attempts per source IP using
// Redis INCR+EXPIRE, defending the admin-token and team-token lookup paths
// against online credential guessing.
type RateLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter creates a rate limiter. maxAttempt is the max failed
// resolution attempts allowed per IP within window.
func NewRateLimiter(rdb *redis.Client, maxAttempt int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, maxAttempt: maxAttempt, window: window}
}

func (rl *RateLimiter) key(ip string) string {
	return fmt.Sprintf("confcore:identity:ratelimit:%s", ip)
}

// Allowed reports whether ip is still under its attempt budget. A nil
// RateLimiter always allows, so the resolver works without Redis configured.
func (rl *RateLimiter) Allowed(ctx context.Context, ip string) (bool, error) {
	if rl == nil || ip == "" {
		return true, nil
	}
	count, err := rl.redis.Get(ctx, rl.key(ip)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("checking identity rate limit: %w", err)
	}
	return count < rl.maxAttempt, nil
}

// RecordFailure increments ip's failed-attempt counter, starting its window
// on the first failure.
func (rl *RateLimiter) RecordFailure(ctx context.Context, ip string) error {
	if rl == nil || ip == "" {
		return nil
	}
	key := rl.key(ip)
	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("recording identity rate limit failure: %w", err)
	}
	if count == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}
	return nil
}

// Reset clears ip's failure counter on a successful resolution.
func (rl *RateLimiter) Reset(ctx context.Context, ip string) error {
	if rl == nil || ip == "" {
		return nil
	}
	return rl.redis.Del(ctx, rl.key(ip)).Err()
}
