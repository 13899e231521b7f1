package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeCache stores the pending verification code per email address. At most
// one code is pending per email: storing a new one overwrites the previous.
type CodeCache struct {
	redis  *redis.Client
	prefix string
}

// NewCodeCache returns a code store using prefix as its key namespace.
func NewCodeCache(client *redis.Client, prefix string) *CodeCache {
	return &CodeCache{
		redis:  client,
		prefix: prefix,
	}
}

func (c *CodeCache) key(email string) string {
	return c.prefix + ":vc:" + strings.ToLower(email)
}

// Store saves code for email with the given ttl, replacing any pending code.
func (c *CodeCache) Store(ctx context.Context, email, code string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("code ttl must be positive")
	}
	if err := c.redis.Set(ctx, c.key(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Check reports whether a code is currently stored for email and equals the
// supplied value. Comparison is case-sensitive and constant-time. Check does
// not consume the code; callers pair it with Invalidate inside the same
// logical operation.
func (c *CodeCache) Check(ctx context.Context, email, code string) (bool, error) {
	stored, err := c.redis.Get(ctx, c.key(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if len(stored) != len(code) {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

// Invalidate evicts the stored code unconditionally. Idempotent; used both
// after a successful check and when issuing a replacement code.
func (c *CodeCache) Invalidate(ctx context.Context, email string) error {
	if err := c.redis.Del(ctx, c.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}
