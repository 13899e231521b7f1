package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/authgate-io/authgate/internal"
	"github.com/google/uuid"
)

// Register creates a disabled account for email and mails it a verification
// code. The account stays disabled until [Engine.ConfirmEmailVerification]
// succeeds. Registering an email that already has an account fails with
// [ErrAccountExists].
func (e *Engine) Register(ctx context.Context, email, pass, role string) error {
	if e == nil || e.codeCache == nil || e.users == nil || e.hasher == nil || e.mailer == nil {
		return ErrEngineNotReady
	}

	_, err := e.lookupByEmail(ctx, email)
	switch {
	case err == nil:
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrAccountExists, func() map[string]string {
			return map[string]string{
				"identifier": MaskEmail(email),
			}
		})
		return ErrAccountExists
	case errors.Is(err, ErrUserNotFound):
		// Free to register.
	default:
		return err
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return err
	}

	record := PrincipalRecord{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  email,
		PasswordHash: hash,
		Role:         role,
		Enabled:      false,
	}
	if err := e.users.Create(ctx, record); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	if err := e.sendVerificationCode(ctx, email, "Verification code",
		"Your verification code is: <b>%s</b>"); err != nil {
		return err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, record.ID, nil, func() map[string]string {
		return map[string]string{
			"identifier": MaskEmail(email),
		}
	})

	return nil
}

// ConfirmEmailVerification checks the single-use code mailed at registration
// and enables the account. A successful check consumes the code: repeating
// the call with the same code fails with [ErrCodeInvalid].
func (e *Engine) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	if e == nil || e.codeCache == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.lookupByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, "", err, nil)
		return err
	}

	ok, err := e.codeCache.Check(ctx, user.Email, code)
	if err != nil {
		e.metricInc(MetricVerifyFailure)
		return e.cacheErr(err)
	}
	if !ok {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventEmailVerifyConfirm, false, user.ID, ErrCodeInvalid, nil)
		return ErrCodeInvalid
	}

	if err := e.codeCache.Invalidate(ctx, user.Email); err != nil {
		e.metricInc(MetricVerifyFailure)
		return e.cacheErr(err)
	}

	user.Enabled = true
	if err := e.users.Update(ctx, user); err != nil {
		e.metricInc(MetricVerifyFailure)
		return errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventEmailVerifyConfirm, true, user.ID, nil, nil)

	return nil
}

// ResendEmailVerification invalidates any pending code for email and mails a
// fresh one. Accounts that are already enabled fail with [ErrAlreadyVerified].
func (e *Engine) ResendEmailVerification(ctx context.Context, email string) error {
	if e == nil || e.codeCache == nil || e.users == nil || e.mailer == nil {
		return ErrEngineNotReady
	}

	user, err := e.lookupByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventEmailVerifyResend, false, "", err, nil)
		return err
	}
	if user.Enabled {
		e.emitAudit(ctx, auditEventEmailVerifyResend, false, user.ID, ErrAlreadyVerified, nil)
		return ErrAlreadyVerified
	}

	if err := e.codeCache.Invalidate(ctx, user.Email); err != nil {
		return e.cacheErr(err)
	}

	if err := e.sendVerificationCode(ctx, user.Email, "New verification code",
		"Your updated verification code is: <b>%s</b>"); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventEmailVerifyResend, true, user.ID, nil, nil)

	return nil
}

// sendVerificationCode generates, stores, and mails a fresh code. Storing
// overwrites any pending code, keeping at most one pending per email.
func (e *Engine) sendVerificationCode(ctx context.Context, email, subject, bodyFormat string) error {
	code, err := internal.NewCode(e.config.Verification.CodeLength)
	if err != nil {
		return err
	}
	if err := e.codeCache.Store(ctx, email, code, e.config.Verification.CodeTTL); err != nil {
		return e.cacheErr(err)
	}

	body := fmt.Sprintf(bodyFormat, code)
	if err := e.mailer.Send(ctx, email, subject, body); err != nil {
		return errors.Join(ErrMailerUnavailable, err)
	}
	return nil
}
