package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventLogout                   = "logout"
	auditEventAuthenticateDenied       = "authenticate_denied"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetRateLimited = "password_reset_rate_limited"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterDuplicate        = "register_duplicate"
	auditEventEmailVerifyConfirm       = "email_verify_confirm"
	auditEventEmailVerifyResend        = "email_verify_resend"
)

type auditErrorCode string

const (
	auditErrInvalidCredentials auditErrorCode = "invalid_credentials"
	auditErrInvalidToken       auditErrorCode = "invalid_token"
	auditErrTokenRevoked       auditErrorCode = "token_revoked"
	auditErrRateLimited        auditErrorCode = "rate_limited"
	auditErrUserNotFound       auditErrorCode = "user_not_found"
	auditErrAccountDisabled    auditErrorCode = "account_disabled"
	auditErrPasswordReuse      auditErrorCode = "password_reuse"
	auditErrCodeInvalid        auditErrorCode = "code_invalid"
	auditErrDuplicate          auditErrorCode = "duplicate"
	auditErrAlreadyVerified    auditErrorCode = "already_verified"
	auditErrUnavailable        auditErrorCode = "backend_unavailable"
	auditErrInternal           auditErrorCode = "internal_error"
)

// emitAudit hands a sanitized event to the dispatcher. The metadata builder
// runs only when auditing is enabled, so hot paths pay nothing when it is off.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditCode(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrMissingToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrCacheUnavailable),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrMailerUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
