package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates the two token families. The kind is embedded in the
// signed claims, so an access token can never be replayed as a refresh token
// or vice versa.
type Kind string

const (
	// KindAccess is the short-lived credential authorizing individual
	// requests.
	KindAccess Kind = "access"
	// KindRefresh is the longer-lived credential used solely to mint new
	// access tokens.
	KindRefresh Kind = "refresh"
)

// ErrInvalid is returned for every verification failure: bad signature, wrong
// issuer, wrong kind, malformed input, or expiry. Callers are not given a
// reason beyond the sentinel.
var ErrInvalid = errors.New("invalid token")

// Config holds the immutable signing material and per-kind lifetimes.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Manager is the token codec. It is safe for concurrent use; the secret is
// loaded once and never changes for the lifetime of the process.
type Manager struct {
	config Config
}

type claims struct {
	Knd string `json:"knd"`
	jwt.RegisteredClaims
}

// NewManager validates the signing configuration. Misconfiguration is a
// startup-time failure; once a Manager exists, Issue can only fail on the
// signer itself.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer must not be empty")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for a token kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Issue builds and signs a token of the given kind for subject using the
// configured per-kind TTL.
func (m *Manager) Issue(subject string, kind Kind) (string, time.Time, error) {
	return m.IssueWithTTL(subject, kind, m.TTL(kind))
}

// IssueWithTTL builds and signs a token with an explicit lifetime. Used for
// the short-lived token embedded in password reset handles. Every token
// carries a unique id claim, so two issues for the same subject never
// collide.
func (m *Manager) IssueWithTTL(subject string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be positive")
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	c := claims{
		Knd: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature, issuer, expiry, and kind of tokenStr and
// returns its subject. Verification is pure: no state is read or written.
func (m *Manager) Verify(tokenStr string, expectedKind Kind) (string, error) {
	c, err := m.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if Kind(c.Knd) != expectedKind {
		return "", ErrInvalid
	}
	return c.Subject, nil
}

// Remaining returns the time left before tokenStr expires. It fails with
// [ErrInvalid] under the same conditions as Verify.
func (m *Manager) Remaining(tokenStr string, expectedKind Kind) (time.Duration, error) {
	c, err := m.parse(tokenStr)
	if err != nil {
		return 0, err
	}
	if Kind(c.Knd) != expectedKind {
		return 0, ErrInvalid
	}
	if c.ExpiresAt == nil {
		return 0, ErrInvalid
	}
	return time.Until(c.ExpiresAt.Time), nil
}

func (m *Manager) parse(tokenStr string) (*claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	return c, nil
}
