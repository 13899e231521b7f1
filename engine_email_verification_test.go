package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func pendingCode(t *testing.T, mr *miniredis.Miniredis, email string) string {
	t.Helper()

	code, err := mr.Get("ag:vc:" + strings.ToLower(email))
	if err != nil {
		t.Fatalf("no pending code for %s: %v", email, err)
	}
	return code
}

func TestRegisterCreatesDisabledAccount(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	mailer := &mockMailer{}
	engine := newTestEngine(t, rdb, store, mailer, nil)

	if err := engine.Register(ctx, "bob@example.com", "initial-password", "member"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	user := store.get("bob@example.com")
	if user.ID == "" {
		t.Fatal("expected the account to be created")
	}
	if user.Enabled {
		t.Fatal("expected the account to start disabled")
	}
	if mailer.count() != 1 {
		t.Fatalf("expected 1 verification mail, got %d", mailer.count())
	}
	if !strings.Contains(mailer.last().body, pendingCode(t, mr, "bob@example.com")) {
		t.Fatal("expected the mail body to carry the pending code")
	}

	// Disabled accounts cannot log in until the email is confirmed.
	if _, _, err := engine.Login(ctx, "bob@example.com", "initial-password"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled before confirmation, got %v", err)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	err := engine.Register(ctx, "alice@example.com", "initial-password", "member")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestConfirmEmailVerificationEnablesAccount(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	if err := engine.Register(ctx, "bob@example.com", "initial-password", "member"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	code := pendingCode(t, mr, "bob@example.com")

	if err := engine.ConfirmEmailVerification(ctx, "bob@example.com", code); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}
	if !store.get("bob@example.com").Enabled {
		t.Fatal("expected the account to be enabled")
	}
	if _, _, err := engine.Login(ctx, "bob@example.com", "initial-password"); err != nil {
		t.Fatalf("login after confirmation failed: %v", err)
	}

	// The code is single-use.
	if err := engine.ConfirmEmailVerification(ctx, "bob@example.com", code); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid on replay, got %v", err)
	}
}

func TestConfirmEmailVerificationWrongCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	if err := engine.Register(ctx, "bob@example.com", "initial-password", "member"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := engine.ConfirmEmailVerification(ctx, "bob@example.com", "!!!!!!")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if store.get("bob@example.com").Enabled {
		t.Fatal("expected the account to stay disabled")
	}
}

func TestResendEmailVerificationReplacesCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	mailer := &mockMailer{}
	engine := newTestEngine(t, rdb, store, mailer, nil)

	if err := engine.Register(ctx, "bob@example.com", "initial-password", "member"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	first := pendingCode(t, mr, "bob@example.com")

	if err := engine.ResendEmailVerification(ctx, "bob@example.com"); err != nil {
		t.Fatalf("ResendEmailVerification failed: %v", err)
	}
	second := pendingCode(t, mr, "bob@example.com")

	if mailer.count() != 2 {
		t.Fatalf("expected 2 mails, got %d", mailer.count())
	}

	// Only the replacement code may confirm. Codes are random, so in the
	// astronomically unlikely collision case the first check would pass;
	// guard the test against it.
	if first != second {
		if err := engine.ConfirmEmailVerification(ctx, "bob@example.com", first); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("expected the superseded code to be rejected, got %v", err)
		}
	}
	if err := engine.ConfirmEmailVerification(ctx, "bob@example.com", second); err != nil {
		t.Fatalf("confirmation with the replacement code failed: %v", err)
	}
}

func TestResendEmailVerificationAlreadyVerified(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	store := &mockUserStore{}
	seedUser(t, store, "alice@example.com", "correct-horse-battery")
	engine := newTestEngine(t, rdb, store, &mockMailer{}, nil)

	err := engine.ResendEmailVerification(ctx, "alice@example.com")
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}
