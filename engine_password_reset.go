package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/authgate-io/authgate/internal"
	"github.com/authgate-io/authgate/token"
)

// RequestPasswordReset starts the reset flow for email. It enforces the
// password-change cool-down, generates a single-use verification code, mints
// a short-lived access token bound to the principal, and delivers the opaque
// reset handle (token followed by the fixed-length code) through the Mailer.
// The handle is also returned to the caller for transports that do not go
// through email.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.codec == nil || e.codeCache == nil || e.resetLimit == nil || e.users == nil || e.mailer == nil {
		return "", ErrEngineNotReady
	}

	user, err := e.lookupByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", err, func() map[string]string {
			return map[string]string{
				"identifier": MaskEmail(email),
			}
		})
		return "", err
	}

	cooldown := e.config.Password.ChangeCooldown
	if cooldown > 0 && !user.LastPasswordChange.IsZero() {
		if time.Since(user.LastPasswordChange) < cooldown {
			e.metricInc(MetricResetRateLimited)
			e.emitAudit(ctx, auditEventPasswordResetRateLimited, false, user.ID, ErrRateLimited, nil)
			return "", ErrRateLimited
		}
	}

	// The same window also throttles repeated requests: the first forgot
	// call claims the cool-down key, later calls fail until it expires.
	allowed, err := e.resetLimit.Allow(ctx, user.Email, cooldown)
	if err != nil {
		return "", e.cacheErr(err)
	}
	if !allowed {
		e.metricInc(MetricResetRateLimited)
		e.emitAudit(ctx, auditEventPasswordResetRateLimited, false, user.ID, ErrRateLimited, nil)
		return "", ErrRateLimited
	}

	code, err := internal.NewCode(e.config.Verification.CodeLength)
	if err != nil {
		return "", err
	}
	if err := e.codeCache.Store(ctx, user.Email, code, e.config.Verification.CodeTTL); err != nil {
		return "", e.cacheErr(err)
	}

	resetToken, _, err := e.codec.IssueWithTTL(user.Email, token.KindAccess, e.resetTokenTTL())
	if err != nil {
		return "", err
	}

	handle := resetToken + code

	subject := "Password reset"
	body := "Use this handle to reset your password: <b>" + handle + "</b><br><br>" +
		"This handle is exclusive to you. Do not share it with anyone."
	if err := e.mailer.Send(ctx, user.Email, subject, body); err != nil {
		// Nothing was delivered, so the claimed window would only lock the
		// principal out of a retry.
		_ = e.resetLimit.Clear(ctx, user.Email)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.ID, ErrMailerUnavailable, nil)
		return "", errors.Join(ErrMailerUnavailable, err)
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": MaskEmail(email),
		}
	})

	return handle, nil
}

// ConfirmPasswordReset completes the reset flow. The handle splits
// positionally: the trailing CodeLength characters are the verification code,
// the remainder is the signed token resolving the principal. The new password
// must differ from the current one and, when history is enabled, from the
// single retained prior generation. On success the code is consumed, the
// embedded token is revoked, and the stored hashes and change timestamp are
// shifted in one update.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, handle, newPassword string) error {
	if e == nil || e.codec == nil || e.codeCache == nil || e.tokenCache == nil || e.resetLimit == nil || e.users == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	codeLen := e.config.Verification.CodeLength
	if len(handle) <= codeLen {
		e.metricInc(MetricResetConfirmFailure)
		return ErrCodeInvalid
	}
	resetToken := handle[:len(handle)-codeLen]
	code := handle[len(handle)-codeLen:]

	subject, err := e.codec.Verify(resetToken, token.KindAccess)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	user, err := e.lookupByEmail(ctx, subject)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", err, nil)
		if errors.Is(err, ErrUserNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	if err := e.rejectReusedPassword(newPassword, user); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, err, nil)
		return err
	}

	ok, err := e.codeCache.Check(ctx, user.Email, code)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, ErrCacheUnavailable, nil)
		return e.cacheErr(err)
	}
	if !ok {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, ErrCodeInvalid, nil)
		return ErrCodeInvalid
	}

	// The code is single-use: evict before the password write so a replayed
	// handle fails even if the update below does not complete.
	if err := e.codeCache.Invalidate(ctx, user.Email); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		return e.cacheErr(err)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricResetConfirmFailure)
		return err
	}

	user.LastPasswordHash = user.PasswordHash
	user.PasswordHash = newHash
	user.LastPasswordChange = time.Now()
	if err := e.users.Update(ctx, user); err != nil {
		e.metricInc(MetricResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, user.ID, ErrStoreUnavailable, nil)
		return errors.Join(ErrStoreUnavailable, err)
	}

	// The mailed token is a live access credential; retire it with the
	// handle it traveled in.
	if remaining, rerr := e.codec.Remaining(resetToken, token.KindAccess); rerr == nil {
		_ = e.tokenCache.Revoke(ctx, resetToken, remaining)
	}

	// From here on the cool-down is anchored to LastPasswordChange.
	_ = e.resetLimit.Clear(ctx, user.Email)

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, nil, nil)

	return nil
}

// rejectReusedPassword enforces the single-generation history policy.
func (e *Engine) rejectReusedPassword(newPassword string, user PrincipalRecord) error {
	if match, err := e.hasher.Verify(newPassword, user.PasswordHash); err == nil && match {
		return ErrPasswordReuse
	}
	if e.config.Password.HistoryDepth >= 1 && user.LastPasswordHash != "" {
		if match, err := e.hasher.Verify(newPassword, user.LastPasswordHash); err == nil && match {
			return ErrPasswordReuse
		}
	}
	return nil
}
