package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/security"
)

func newLinkSigner(t *testing.T, clock *testClock) *security.LinkSigner {
	t.Helper()
	signer, err := security.NewLinkSigner("verify-secret", "reset-secret", 10*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewLinkSigner returned error: %v", err)
	}
	return signer.WithClock(clock.Now)
}

func newRegistration(t *testing.T, h *harness, policy stubPolicy) (*RegistrationService, *security.LinkSigner, *stubDenylist) {
	t.Helper()
	links := newLinkSigner(t, h.clock)
	denylist := newStubDenylist()
	svc := NewRegistrationService(h.cfg, h.store, stubHasher{}, policy, links, denylist, h.mailer, h.events, zap.NewNop())
	svc.WithClock(h.clock.Now)
	return svc, links, denylist
}

func aliceInput() RegisterInput {
	return RegisterInput{
		FirstName: "Alice",
		LastName:  "Liddell",
		Phone:     "5551234567",
		Email:     "Alice@Example.com",
		Password:  "Passw0rd!",
	}
}

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	h := newHarness(t)
	svc, _, _ := newRegistration(t, h, stubPolicy{})

	user, err := svc.Register(context.Background(), aliceInput())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "alice@example.com" || user.IsVerified || user.PasswordHash != "" {
		t.Fatalf("unexpected returned user %+v", user)
	}

	stored := h.store.get(user.ID)
	if stored.PasswordHash != "hashed:Passw0rd!" {
		t.Fatalf("password not hashed: %q", stored.PasswordHash)
	}

	msg := h.mailer.last()
	if msg.Subject != "Verify Your Email" || !strings.Contains(msg.Text, "http://localhost:8000/api/auth/verify/") {
		t.Fatalf("unexpected verification mail %+v", msg)
	}
	if len(eventsOf[domain.UserRegisteredEvent](h.events)) != 1 {
		t.Fatal("expected registration event")
	}

	if _, err := h.credentials.Verify(context.Background(), "alice@example.com", "Passw0rd!"); !errors.Is(err, ErrEmailUnverified) {
		t.Fatalf("unverified account must not log in, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	svc, _, _ := newRegistration(t, h, stubPolicy{})

	mutations := map[string]func(*RegisterInput){
		"missing first name": func(in *RegisterInput) { in.FirstName = "" },
		"missing password":   func(in *RegisterInput) { in.Password = "" },
		"bad email":          func(in *RegisterInput) { in.Email = "alice" },
		"short phone":        func(in *RegisterInput) { in.Phone = "12345" },
		"letters in phone":   func(in *RegisterInput) { in.Phone = "555123456x" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := aliceInput()
			mutate(&in)
			var validation *ValidationError
			if _, err := svc.Register(context.Background(), in); !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	weak, _, _ := newRegistration(t, h, stubPolicy{err: errors.New("password is too weak")})
	var validation *ValidationError
	if _, err := weak.Register(context.Background(), aliceInput()); !errors.As(err, &validation) || validation.Field != "password" {
		t.Fatalf("expected password ValidationError, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "pw"))
	svc, _, _ := newRegistration(t, h, stubPolicy{})

	if _, err := svc.Register(context.Background(), aliceInput()); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("smtp down")
	svc, _, _ := newRegistration(t, h, stubPolicy{})

	if _, err := svc.Register(context.Background(), aliceInput()); err != nil {
		t.Fatalf("mail failure must not fail registration: %v", err)
	}
}

func TestVerifyEmailSingleUse(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "pw")
	user.IsVerified = false
	h := newHarness(t, user)
	svc, links, denylist := newRegistration(t, h, stubPolicy{})

	token, err := links.SignVerification("alice@example.com")
	if err != nil {
		t.Fatalf("SignVerification returned error: %v", err)
	}

	verified, err := svc.VerifyEmail(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyEmail returned error: %v", err)
	}
	if !verified.IsVerified || !h.store.get("u1").IsVerified {
		t.Fatal("account should be verified")
	}
	if len(denylist.used) != 1 {
		t.Fatal("link id should be consumed")
	}
	for _, ttl := range denylist.used {
		if ttl != 10*time.Minute {
			t.Fatalf("unexpected denylist ttl %v", ttl)
		}
	}
	if len(eventsOf[domain.EmailVerifiedEvent](h.events)) != 1 {
		t.Fatal("expected email verified event")
	}

	if _, err := svc.VerifyEmail(context.Background(), token); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("reused link should fail, got %v", err)
	}
}

func TestVerifyEmailExpiredOrForged(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "pw")
	user.IsVerified = false
	h := newHarness(t, user)
	svc, links, _ := newRegistration(t, h, stubPolicy{})

	token, _ := links.SignVerification("alice@example.com")
	h.clock.Advance(11 * time.Minute)
	if _, err := svc.VerifyEmail(context.Background(), token); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired for expired link, got %v", err)
	}
	if _, err := svc.VerifyEmail(context.Background(), "forged"); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired for forged link, got %v", err)
	}
	if h.store.get("u1").IsVerified {
		t.Fatal("account must stay unverified")
	}
}
