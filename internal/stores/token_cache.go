package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable is the normalized transport failure for every store in
// this package. The engine wraps it into its public sentinel.
var ErrCacheUnavailable = errors.New("cache unavailable")

// TokenCache is the credential cache adapter: one registry slot per
// (principal, kind) plus a revocation list keyed by token digest. Revocation
// entries carry a TTL equal to the token's remaining validity, so the list
// never outlives the tokens it blocks.
type TokenCache struct {
	redis  *redis.Client
	prefix string
}

// NewTokenCache returns a cache adapter using prefix as its key namespace.
func NewTokenCache(client *redis.Client, prefix string) *TokenCache {
	return &TokenCache{
		redis:  client,
		prefix: prefix,
	}
}

func (c *TokenCache) slotKey(principalID, kind string) string {
	return c.prefix + ":tok:" + principalID + ":" + kind
}

func (c *TokenCache) revocationKey(token string) string {
	// Tokens are long; the digest keeps revocation keys fixed-size and keeps
	// raw token material out of keyspace scans.
	sum := sha256.Sum256([]byte(token))
	return c.prefix + ":rvk:" + hex.EncodeToString(sum[:])
}

// Put unconditionally overwrites the registry slot for (principalID, kind).
// The TTL must equal the token's remaining validity at storage time so the
// slot expires with the token.
func (c *TokenCache) Put(ctx context.Context, principalID, kind, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("registry ttl must be positive")
	}
	if err := c.redis.Set(ctx, c.slotKey(principalID, kind), token, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the current token in the slot, with ok=false when the slot is
// absent or has expired.
func (c *TokenCache) Get(ctx context.Context, principalID, kind string) (string, bool, error) {
	val, err := c.redis.Get(ctx, c.slotKey(principalID, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return val, true, nil
}

// Evict removes the registry slot. Idempotent.
func (c *TokenCache) Evict(ctx context.Context, principalID, kind string) error {
	if err := c.redis.Del(ctx, c.slotKey(principalID, kind)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Revoke adds token to the revocation list for ttl. A non-positive ttl means
// the token has already expired naturally and the call is a no-op.
func (c *TokenCache) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.redis.Set(ctx, c.revocationKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether token is on the revocation list. A transport
// failure is returned as an error, never as false: the caller decides, and
// authentication paths fail closed.
func (c *TokenCache) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.revocationKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}
