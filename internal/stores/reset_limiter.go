package stores

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetLimiter enforces the password reset cool-down window with a Redis
// key per principal. A request is allowed only when no key exists; the key
// expires on its own when the window ends.
type ResetLimiter struct {
	redis  *redis.Client
	prefix string
}

// NewResetLimiter creates a [ResetLimiter] backed by the given Redis client.
func NewResetLimiter(redisClient *redis.Client, prefix string) *ResetLimiter {
	return &ResetLimiter{redis: redisClient, prefix: prefix}
}

// Allow reports whether a reset request for email may proceed, and starts the
// cool-down window when it may. The check and the claim are one SETNX, so two
// concurrent requests cannot both pass.
func (l *ResetLimiter) Allow(ctx context.Context, email string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	ok, err := l.redis.SetNX(ctx, l.key(email), "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return ok, nil
}

// Clear removes the cool-down for email. Called after a completed reset so
// the next window is anchored to the password change itself.
func (l *ResetLimiter) Clear(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (l *ResetLimiter) key(email string) string {
	return l.prefix + ":rstrl:" + strings.ToLower(email)
}
