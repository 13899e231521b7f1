package authgate

import (
	"errors"
	"time"
)

// Config is the immutable configuration tree for an [Engine]. Zero values are
// filled from defaultConfig by [New]; Validate rejects anything the engine
// cannot run with before any I/O happens.
type Config struct {
	Token        TokenConfig
	Verification VerificationConfig
	Password     PasswordConfig
	Cache        CacheConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the signed-token codec and the registry policy.
// Secret is the single process-wide symmetric signing secret; there is no
// key-rotation scheme.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// ResetTokenTTL bounds the short-lived token embedded in a password
	// reset handle. Defaults to AccessTTL when zero.
	ResetTokenTTL time.Duration
	// ReuseRefreshOnLogin keeps the stored refresh token across repeated
	// logins unless it is absent or revoked. Disabling it mints a fresh
	// refresh token on every login.
	ReuseRefreshOnLogin bool
}

/*
====================================
VERIFICATION CODE CONFIG
====================================
*/

// VerificationConfig configures the single-use codes mailed for password
// reset and email confirmation. CodeLength is a versioned constant of the
// reset-handle format: parsing splits the handle positionally by it, so
// changing it invalidates handles already delivered.
type VerificationConfig struct {
	CodeLength int
	CodeTTL    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id parameters plus the reset policy knobs.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// ChangeCooldown is the minimum interval between password changes
	// before another reset may be requested.
	ChangeCooldown time.Duration
	// HistoryDepth is how many prior password generations a new password is
	// checked against. The store retains a single prior hash, so only 0
	// (current password only) and 1 are valid.
	HistoryDepth int
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the Redis key namespace shared by the token registry,
// the revocation list, and the verification code store.
type CacheConfig struct {
	KeyPrefix string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the atomic counter registry.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:              "authgate",
			AccessTTL:           15 * time.Minute,
			RefreshTTL:          7 * 24 * time.Hour,
			ReuseRefreshOnLogin: true,
		},
		Verification: VerificationConfig{
			CodeLength: 6,
			CodeTTL:    10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			ChangeCooldown: time.Hour,
			HistoryDepth:   1,
		},
		Cache: CacheConfig{
			KeyPrefix: "ag",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate checks configuration invariants. It is called by [Builder.Build];
// a Config that fails validation never reaches the engine.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	if c.Token.Issuer == "" {
		return errors.New("token issuer must not be empty")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must not be shorter than access TTL")
	}
	if c.Token.ResetTokenTTL < 0 {
		return errors.New("reset token TTL must not be negative")
	}
	if c.Verification.CodeLength < 4 || c.Verification.CodeLength > 32 {
		return errors.New("verification code length must be between 4 and 32")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("verification code TTL must be positive")
	}
	if c.Password.ChangeCooldown < 0 {
		return errors.New("password change cooldown must not be negative")
	}
	if c.Password.HistoryDepth < 0 || c.Password.HistoryDepth > 1 {
		return errors.New("password history depth must be 0 or 1")
	}
	if c.Cache.KeyPrefix == "" {
		return errors.New("cache key prefix must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	out.Token.Secret = cloneBytes(c.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
