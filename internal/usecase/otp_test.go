package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/mail"
)

func TestOTPIssuePersistsAndMails(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "pw"))
	user := h.store.get("u1")

	code, err := h.otp.Issue(context.Background(), &user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if code != 123456 {
		t.Fatalf("unexpected code %d", code)
	}

	stored := h.store.get("u1")
	if stored.LoginOTP == nil || *stored.LoginOTP != code {
		t.Fatalf("code not stored: %+v", stored.LoginOTP)
	}
	if stored.LoginOTPExpiry == nil || !stored.LoginOTPExpiry.Equal(baseTime.Add(5*time.Minute)) {
		t.Fatalf("unexpected expiry %v", stored.LoginOTPExpiry)
	}
	if user.LoginOTP == nil {
		t.Fatal("caller's copy should be refreshed")
	}

	msg := h.mailer.last()
	if msg.Subject != mail.SubjectLoginOTP || msg.To != "alice@example.com" || !strings.Contains(msg.Text, "123456") {
		t.Fatalf("unexpected mail %+v", msg)
	}

	issued := eventsOf[domain.LoginOTPIssuedEvent](h.events)
	if len(issued) != 1 || !issued[0].Delivered {
		t.Fatalf("unexpected otp events %+v", issued)
	}
}

func TestOTPIssueSwallowsMailFailure(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "pw"))
	h.mailer.err = errors.New("smtp down")
	user := h.store.get("u1")

	if _, err := h.otp.Issue(context.Background(), &user); err != nil {
		t.Fatalf("mail failure must not fail issuance: %v", err)
	}
	if h.store.get("u1").LoginOTP == nil {
		t.Fatal("code should be persisted")
	}
	issued := eventsOf[domain.LoginOTPIssuedEvent](h.events)
	if len(issued) != 1 || issued[0].Delivered {
		t.Fatalf("expected undelivered event, got %+v", issued)
	}
}

func TestOTPIssueOverwritesPreviousCode(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "pw"))
	user := h.store.get("u1")

	if _, err := h.otp.Issue(context.Background(), &user); err != nil {
		t.Fatalf("first Issue returned error: %v", err)
	}
	h.otp.WithGenerator(func() (int, error) { return 654321, nil })
	h.clock.Advance(time.Minute)
	if _, err := h.otp.Issue(context.Background(), &user); err != nil {
		t.Fatalf("second Issue returned error: %v", err)
	}

	stored := h.store.get("u1")
	if err := h.otp.Check(stored, "123456"); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("old code should no longer match, got %v", err)
	}
	if err := h.otp.Check(stored, "654321"); err != nil {
		t.Fatalf("new code should match: %v", err)
	}
}

func TestOTPCheck(t *testing.T) {
	h := newHarness(t)
	code := 12345
	expiry := baseTime.Add(5 * time.Minute)
	pending := domain.User{LoginOTP: &code, LoginOTPExpiry: &expiry}

	cases := []struct {
		name      string
		user      domain.User
		submitted string
		advance   time.Duration
		want      error
	}{
		{name: "not requested", user: domain.User{}, submitted: "12345", want: ErrOTPNotRequested},
		{name: "leading zero", user: pending, submitted: "012345"},
		{name: "whitespace", user: pending, submitted: " 12345 "},
		{name: "mismatch", user: pending, submitted: "12346", want: ErrOTPMismatch},
		{name: "non numeric", user: pending, submitted: "abcde", want: ErrOTPMismatch},
		{name: "plus sign", user: pending, submitted: "+12345", want: ErrOTPMismatch},
		{name: "minus sign", user: pending, submitted: "-12345", want: ErrOTPMismatch},
		{name: "inner space", user: pending, submitted: "123 45", want: ErrOTPMismatch},
		{name: "empty", user: pending, submitted: "  ", want: ErrOTPMismatch},
		{name: "at expiry", user: pending, submitted: "12345", advance: 5 * time.Minute},
		{name: "expired", user: pending, submitted: "12345", advance: 5*time.Minute + time.Second, want: ErrOTPExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := baseTime.Add(tc.advance)
			h.otp.WithClock(func() time.Time { return now })
			err := h.otp.Check(tc.user, tc.submitted)
			if tc.want == nil && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOTPClear(t *testing.T) {
	h := newHarness(t)
	code := 111111
	expiry := baseTime
	user := domain.User{LoginOTP: &code, LoginOTPExpiry: &expiry}
	h.otp.Clear(&user)
	if user.LoginOTP != nil || user.LoginOTPExpiry != nil {
		t.Fatal("Clear should drop both fields")
	}
}
