package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/authgate-io/authgate/internal/stores"
	"github.com/authgate-io/authgate/password"
	"github.com/authgate-io/authgate/token"
)

// Engine orchestrates the token and credential lifecycle: login, refresh,
// logout, password reset, and per-request authentication. Construct it with
// [Builder.Build]; after that every method is safe for concurrent use.
type Engine struct {
	config     Config
	codec      *token.Manager
	tokenCache *stores.TokenCache
	codeCache  *stores.CodeCache
	resetLimit *stores.ResetLimiter
	hasher     *password.Argon2
	users      UserStore
	mailer     Mailer
	audit      *auditDispatcher
	metrics    *Metrics
}

// Registry slot names. These appear in cache keys, so they are part of the
// deployed key layout.
const (
	slotAccess  = "access"
	slotRefresh = "refresh"
)

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate is the per-request admission gate. It consults the revocation
// list first — exactly once, and failing closed on any cache error — then
// verifies the access token and resolves it to a principal. The returned
// Principal is read-only for the remainder of the request.
//
// An unknown subject is reported as [ErrTokenInvalid]: authentication
// failures never disclose whether an account exists.
func (e *Engine) Authenticate(ctx context.Context, tokenStr string) (*Principal, error) {
	if e == nil || e.codec == nil || e.tokenCache == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	if tokenStr == "" {
		e.metricInc(MetricAuthenticateDenied)
		return nil, ErrMissingToken
	}

	revoked, err := e.tokenCache.IsRevoked(ctx, tokenStr)
	if err != nil {
		e.metricInc(MetricAuthenticateDenied)
		e.emitAudit(ctx, auditEventAuthenticateDenied, false, "", ErrCacheUnavailable, nil)
		return nil, fmt.Errorf("%w: revocation check failed", ErrCacheUnavailable)
	}
	if revoked {
		e.metricInc(MetricAuthenticateDenied)
		e.metricInc(MetricRevokedTokenSeen)
		e.emitAudit(ctx, auditEventAuthenticateDenied, false, "", ErrTokenRevoked, nil)
		return nil, ErrTokenRevoked
	}

	subject, err := e.codec.Verify(tokenStr, token.KindAccess)
	if err != nil {
		e.metricInc(MetricAuthenticateDenied)
		e.emitAudit(ctx, auditEventAuthenticateDenied, false, "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	user, err := e.users.FindByEmail(ctx, subject)
	if err != nil {
		e.metricInc(MetricAuthenticateDenied)
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventAuthenticateDenied, false, "", ErrUserNotFound, nil)
			return nil, ErrTokenInvalid
		}
		e.emitAudit(ctx, auditEventAuthenticateDenied, false, "", ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Enabled {
		e.metricInc(MetricAuthenticateDenied)
		e.emitAudit(ctx, auditEventAuthenticateDenied, false, user.ID, ErrAccountDisabled, nil)
		return nil, ErrTokenInvalid
	}

	e.metricInc(MetricAuthenticateAllowed)

	return &Principal{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	}, nil
}

// lookupByEmail normalizes store failures: missing records keep the
// ErrUserNotFound sentinel, everything else is a transport failure.
func (e *Engine) lookupByEmail(ctx context.Context, email string) (PrincipalRecord, error) {
	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return PrincipalRecord{}, ErrUserNotFound
		}
		return PrincipalRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return user, nil
}

func (e *Engine) cacheErr(err error) error {
	if errors.Is(err, stores.ErrCacheUnavailable) {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return err
}

// resetTokenTTL is the lifetime of the short token embedded in a password
// reset handle.
func (e *Engine) resetTokenTTL() time.Duration {
	if e.config.Token.ResetTokenTTL > 0 {
		return e.config.Token.ResetTokenTTL
	}
	return e.config.Token.AccessTTL
}
