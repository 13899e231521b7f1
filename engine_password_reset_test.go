package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func requestHandle(t *testing.T, engine *Engine, email string) string {
	t.Helper()

	handle, err := engine.RequestPasswordReset(context.Background(), email)
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	return handle
}

func TestRequestPasswordResetDeliversHandle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	mailer := &mockMailer{}
	engine := newTestEngine(t, rdb, store, mailer, nil)

	handle := requestHandle(t, engine, "alice@example.com")

	if len(handle) <= engine.config.Verification.CodeLength {
		t.Fatalf("handle too short: %d chars", len(handle))
	}
	if mailer.count() != 1 {
		t.Fatalf("expected 1 mail, got %d", mailer.count())
	}
	mail := mailer.last()
	if mail.to != "alice@example.com" {
		t.Fatalf("mail sent to %q", mail.to)
	}
	if !strings.Contains(mail.body, handle) {
		t.Fatal("expected mail body to carry the handle")
	}
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, &mockUserStore{}, &mockMailer{}, nil)

	_, err := engine.RequestPasswordReset(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRequestPasswordResetSecondCallInsideWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	requestHandle(t, engine, "alice@example.com")

	_, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on second request, got %v", err)
	}
}

func TestRequestPasswordResetAfterWindowExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	requestHandle(t, engine, "alice@example.com")
	mr.FastForward(time.Hour + time.Minute)

	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("expected request after window to succeed, got %v", err)
	}
}

func TestRequestPasswordResetRecentPasswordChange(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	user := seedUser(t, store, "alice@example.com", "correct-horse-battery")
	user.LastPasswordChange = time.Now().Add(-10 * time.Minute)
	store.users["alice@example.com"] = user
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	_, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited inside cool-down, got %v", err)
	}
}

func TestRequestPasswordResetMailerFailureAllowsRetry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	mailer := &mockMailer{err: errors.New("smtp down")}
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)
	engine.mailer = mailer

	_, err := engine.RequestPasswordReset(context.Background(), "alice@example.com")
	if !errors.Is(err, ErrMailerUnavailable) {
		t.Fatalf("expected ErrMailerUnavailable, got %v", err)
	}

	// Nothing was delivered, so the cool-down must not have been claimed.
	mailer.err = nil
	if _, err := engine.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestConfirmPasswordResetChangesPassword(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	before := seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	handle := requestHandle(t, engine, "alice@example.com")

	if err := engine.ConfirmPasswordReset(ctx, handle, "brand-new-password"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	after := store.get("alice@example.com")
	if after.PasswordHash == before.PasswordHash {
		t.Fatal("expected the password hash to change")
	}
	if after.LastPasswordHash != before.PasswordHash {
		t.Fatal("expected the old hash to shift into the retained generation")
	}
	if after.LastPasswordChange.IsZero() {
		t.Fatal("expected the change timestamp to be stamped")
	}

	ok, err := engine.hasher.Verify("brand-new-password", after.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("new password does not verify, ok=%v err=%v", ok, err)
	}
	if _, _, err := engine.Login(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestConfirmPasswordResetConsumesCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	handle := requestHandle(t, engine, "alice@example.com")

	if err := engine.ConfirmPasswordReset(ctx, handle, "brand-new-password"); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}

	err := engine.ConfirmPasswordReset(ctx, handle, "yet-another-password")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid on replay, got %v", err)
	}
}

func TestConfirmPasswordResetRevokesEmbeddedToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	handle := requestHandle(t, engine, "alice@example.com")
	resetToken := handle[:len(handle)-engine.config.Verification.CodeLength]

	if err := engine.ConfirmPasswordReset(ctx, handle, "brand-new-password"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	// The mailed token is access-kind; once the reset completes it must be
	// dead as a bearer credential too.
	if _, err := engine.Authenticate(ctx, resetToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for consumed reset token, got %v", err)
	}
}

func TestConfirmPasswordResetRejectsShortHandle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, &mockUserStore{}, &mockMailer{}, nil)

	err := engine.ConfirmPasswordReset(context.Background(), "abc", "brand-new-password")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for short handle, got %v", err)
	}
}

func TestConfirmPasswordResetRejectsWrongCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	handle := requestHandle(t, engine, "alice@example.com")
	codeLen := engine.config.Verification.CodeLength
	tampered := handle[:len(handle)-codeLen] + strings.Repeat("!", codeLen)

	err := engine.ConfirmPasswordReset(context.Background(), tampered, "brand-new-password")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for wrong code, got %v", err)
	}
}

func TestConfirmPasswordResetRejectsTamperedToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	handle := requestHandle(t, engine, "alice@example.com")
	tampered := "x" + handle[1:]

	err := engine.ConfirmPasswordReset(context.Background(), tampered, "brand-new-password")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestConfirmPasswordResetExpiredCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, func(cfg *Config) {
		cfg.Token.ResetTokenTTL = time.Hour
	})

	handle := requestHandle(t, engine, "alice@example.com")
	mr.FastForward(11 * time.Minute)

	err := engine.ConfirmPasswordReset(context.Background(), handle, "brand-new-password")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid after code expiry, got %v", err)
	}
}

func TestConfirmPasswordResetRejectsCurrentPassword(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	handle := requestHandle(t, engine, "alice@example.com")

	err := engine.ConfirmPasswordReset(context.Background(), handle, "correct-horse-battery")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for current password, got %v", err)
	}
}

func TestConfirmPasswordResetRejectsPreviousGeneration(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "first-password-1")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, func(cfg *Config) {
		cfg.Password.ChangeCooldown = 0
	})

	handle := requestHandle(t, engine, "alice@example.com")
	if err := engine.ConfirmPasswordReset(ctx, handle, "second-password-2"); err != nil {
		t.Fatalf("first reset failed: %v", err)
	}

	handle = requestHandle(t, engine, "alice@example.com")
	err := engine.ConfirmPasswordReset(ctx, handle, "first-password-1")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for retained generation, got %v", err)
	}
}

func TestConfirmPasswordResetHistoryDisabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "first-password-1")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, func(cfg *Config) {
		cfg.Password.ChangeCooldown = 0
		cfg.Password.HistoryDepth = 0
	})

	handle := requestHandle(t, engine, "alice@example.com")
	if err := engine.ConfirmPasswordReset(ctx, handle, "second-password-2"); err != nil {
		t.Fatalf("first reset failed: %v", err)
	}

	// With history depth 0 only the current password is checked.
	handle = requestHandle(t, engine, "alice@example.com")
	if err := engine.ConfirmPasswordReset(ctx, handle, "first-password-1"); err != nil {
		t.Fatalf("expected reset to the retired password to pass, got %v", err)
	}
}
