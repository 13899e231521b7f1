package authgate

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned by Login when the email is unknown or
	// the password does not match. The two cases are deliberately
	// indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is the sentinel a UserStore must return (possibly
	// wrapped) when no record exists for the given email.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenInvalid covers bad signature, wrong issuer, wrong kind, and
	// expiry. Boundary layers map it to 401.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked marks a token present in the revocation list despite a
	// valid signature. Boundary layers map it to 403.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrMissingToken marks a protected request without an Authorization
	// bearer value. Boundary layers map it to 403, not anonymous access.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrRateLimited is returned by RequestPasswordReset inside the
	// password-change cool-down window.
	ErrRateLimited = errors.New("password change rate limited")
	// ErrPasswordReuse rejects a new password equal to the current one or to
	// the retained previous generation.
	ErrPasswordReuse = errors.New("new password was already used")
	// ErrCodeInvalid covers an expired, mismatched, or already-consumed
	// verification code.
	ErrCodeInvalid = errors.New("verification code invalid or expired")
	// ErrAccountExists rejects registration of an email that already has an
	// account.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountDisabled rejects login for an account that has not confirmed
	// its email yet.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAlreadyVerified rejects a verification-code resend for an account
	// that is already enabled.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrCacheUnavailable surfaces Redis transport failures. On
	// authentication paths it always results in denial (fail closed).
	ErrCacheUnavailable = errors.New("credential cache unavailable")
	// ErrMailerUnavailable surfaces transient email delivery failures.
	ErrMailerUnavailable = errors.New("mail delivery unavailable")
	// ErrStoreUnavailable surfaces user datastore transport failures.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on an
	// engine that was not produced by Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// StatusForError maps engine errors to HTTP status codes for boundary layers
// building a uniform error envelope. Unknown errors map to 500 so that no
// internal failure is ever mistaken for an allow decision.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, ErrMissingToken):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrAccountDisabled):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound):
		// Never leaks account existence: same status as bad credentials.
		return http.StatusUnauthorized
	case errors.Is(err, ErrCacheUnavailable),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrMailerUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
