package authgate

import (
	"context"
	"time"
)

// PrincipalRecord is the full account record exchanged with a [UserStore].
// It carries the credential hashes, the single retained prior hash, and the
// last-change timestamp used by the reset cool-down.
type PrincipalRecord struct {
	ID                 string
	Email              string
	DisplayName        string
	PasswordHash       string
	LastPasswordHash   string
	LastPasswordChange time.Time
	Role               string
	Enabled            bool
}

// Principal is the authenticated identity resolved by [Engine.Authenticate]
// and attached to the request context by middleware.Guard. It is read-only
// for the remainder of the request.
type Principal struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
}

// UserStore is the user datastore collaborator. Implementations must return
// [ErrUserNotFound] (possibly wrapped) from FindByEmail when no record exists;
// any other error is treated as a transport failure.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (PrincipalRecord, error)
	Create(ctx context.Context, record PrincipalRecord) error
	Update(ctx context.Context, record PrincipalRecord) error
}

// Mailer is the outbound email collaborator. Send failures surface to the
// caller as [ErrMailerUnavailable]; the engine never retries.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
