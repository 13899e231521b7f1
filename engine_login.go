package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/authgate-io/authgate/token"
)

// Login verifies the supplied credentials and returns a token pair. The
// access token is always freshly minted; the previously registered access
// token (if any) is revoked so that at most one access token per principal
// is ever live. The refresh token is reused from the registry when present
// and not revoked, otherwise a new one is minted and stored.
func (e *Engine) Login(ctx context.Context, email, pass string) (string, string, error) {
	if e == nil || e.codec == nil || e.tokenCache == nil || e.users == nil || e.hasher == nil {
		return "", "", ErrEngineNotReady
	}
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		return "", "", ErrInvalidCredentials
	}

	user, err := e.lookupByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": MaskEmail(email),
				"reason":     "user_not_found",
			}
		})
		if errors.Is(err, ErrUserNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": MaskEmail(email),
				"reason":     "password_mismatch",
			}
		})
		return "", "", ErrInvalidCredentials
	}
	if !user.Enabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, ErrAccountDisabled, func() map[string]string {
			return map[string]string{
				"identifier": MaskEmail(email),
				"reason":     "account_disabled",
			}
		})
		return "", "", ErrAccountDisabled
	}
	pass = ""

	access, err := e.rotateAccess(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, err, nil)
		return "", "", err
	}

	refresh, err := e.currentOrNewRefresh(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, err, nil)
		return "", "", err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": MaskEmail(email),
		}
	})

	return access, refresh, nil
}

// Refresh rotates a token pair. The supplied refresh token must verify, be of
// refresh kind, and not be revoked. Both tokens are reissued; the old refresh
// token is superseded in the registry but not revoked — multi-use of a
// superseded refresh token is only blocked by explicit revocation.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	if e == nil || e.codec == nil || e.tokenCache == nil || e.users == nil {
		return "", "", ErrEngineNotReady
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return "", "", ErrTokenInvalid
	}

	revoked, err := e.tokenCache.IsRevoked(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrCacheUnavailable, nil)
		return "", "", e.cacheErr(err)
	}
	if revoked {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrTokenRevoked, nil)
		return "", "", ErrTokenRevoked
	}

	subject, err := e.codec.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", ErrTokenInvalid, nil)
		return "", "", ErrTokenInvalid
	}

	user, err := e.lookupByEmail(ctx, subject)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", err, nil)
		if errors.Is(err, ErrUserNotFound) {
			return "", "", ErrTokenInvalid
		}
		return "", "", err
	}
	if !user.Enabled {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, ErrAccountDisabled, nil)
		return "", "", ErrTokenInvalid
	}

	access, err := e.rotateAccess(ctx, user)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, err, nil)
		return "", "", err
	}

	refresh, err := e.mintRefresh(ctx, user)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, err, nil)
		return "", "", err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, nil, nil)

	return access, refresh, nil
}

// Logout revokes the supplied bearer token for its remaining validity. Either
// token kind is accepted. A token that no longer verifies, including one that
// has expired naturally, fails with [ErrTokenInvalid]; nothing is written for
// it, so revocation entries never outlive the tokens they block.
func (e *Engine) Logout(ctx context.Context, bearerToken string) error {
	if e == nil || e.codec == nil || e.tokenCache == nil {
		return ErrEngineNotReady
	}
	if bearerToken == "" {
		return ErrMissingToken
	}

	remaining, err := e.codec.Remaining(bearerToken, token.KindAccess)
	if err != nil {
		remaining, err = e.codec.Remaining(bearerToken, token.KindRefresh)
	}
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	if err := e.tokenCache.Revoke(ctx, bearerToken, remaining); err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", ErrCacheUnavailable, nil)
		return e.cacheErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", nil, nil)

	return nil
}

// rotateAccess revokes the registry's current access token for the principal
// and issues, stores, and returns a fresh one. The registry TTL equals the
// new token's remaining validity, so the slot expires with the token.
func (e *Engine) rotateAccess(ctx context.Context, user PrincipalRecord) (string, error) {
	old, ok, err := e.tokenCache.Get(ctx, user.ID, slotAccess)
	if err != nil {
		return "", e.cacheErr(err)
	}
	if ok {
		// A superseded access token must not stay usable; revoke it for
		// whatever validity it has left.
		if remaining, rerr := e.codec.Remaining(old, token.KindAccess); rerr == nil {
			if err := e.tokenCache.Revoke(ctx, old, remaining); err != nil {
				return "", e.cacheErr(err)
			}
		}
	}

	access, expiresAt, err := e.codec.Issue(user.Email, token.KindAccess)
	if err != nil {
		return "", err
	}
	if err := e.tokenCache.Put(ctx, user.ID, slotAccess, access, time.Until(expiresAt)); err != nil {
		return "", e.cacheErr(err)
	}

	return access, nil
}

// currentOrNewRefresh returns the registry's refresh token when reuse is
// enabled and the stored token is not revoked. Revocation always wins over
// presence: a revoked slot is treated as absent and a new token is minted.
func (e *Engine) currentOrNewRefresh(ctx context.Context, user PrincipalRecord) (string, error) {
	if e.config.Token.ReuseRefreshOnLogin {
		stored, ok, err := e.tokenCache.Get(ctx, user.ID, slotRefresh)
		if err != nil {
			return "", e.cacheErr(err)
		}
		if ok {
			revoked, err := e.tokenCache.IsRevoked(ctx, stored)
			if err != nil {
				return "", e.cacheErr(err)
			}
			if !revoked {
				return stored, nil
			}
		}
	}
	return e.mintRefresh(ctx, user)
}

func (e *Engine) mintRefresh(ctx context.Context, user PrincipalRecord) (string, error) {
	refresh, expiresAt, err := e.codec.Issue(user.Email, token.KindRefresh)
	if err != nil {
		return "", err
	}
	if err := e.tokenCache.Put(ctx, user.ID, slotRefresh, refresh, time.Until(expiresAt)); err != nil {
		return "", e.cacheErr(err)
	}
	return refresh, nil
}
