package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
)

func TestVerifyUnknownEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.credentials.Verify(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestVerifyRejectsMalformedInputBeforeStore(t *testing.T) {
	h := newHarness(t)
	h.store.getErr = errors.New("store must not be called")

	var validation *ValidationError
	if _, err := h.credentials.Verify(context.Background(), "not-an-email", "pw"); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := h.credentials.Verify(context.Background(), "alice@example.com", ""); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for empty password, got %v", err)
	}
}

func TestVerifyUnverifiedLeavesCounters(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "Passw0rd!")
	user.IsVerified = false
	user.FailedAttempts = 2
	h := newHarness(t, user)

	_, err := h.credentials.Verify(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrEmailUnverified) {
		t.Fatalf("expected ErrEmailUnverified, got %v", err)
	}
	if got := h.store.get("u1").FailedAttempts; got != 2 {
		t.Fatalf("counter changed to %d", got)
	}
	if h.store.saves != 0 {
		t.Fatalf("expected no writes, got %d", h.store.saves)
	}
}

func TestVerifyCountsFailuresAndLocksOnThreshold(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "Passw0rd!"))
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := h.credentials.Verify(ctx, "alice@example.com", "wrong")
		var invalid *InvalidCredentialsError
		if !errors.As(err, &invalid) {
			t.Fatalf("attempt %d: expected InvalidCredentialsError, got %v", attempt, err)
		}
		if invalid.Attempt != attempt || invalid.Limit != 5 {
			t.Fatalf("attempt %d: unexpected error payload %+v", attempt, invalid)
		}
		if got := h.store.get("u1").FailedAttempts; got != attempt {
			t.Fatalf("attempt %d: stored counter %d", attempt, got)
		}
	}

	_, err := h.credentials.Verify(ctx, "alice@example.com", "wrong")
	var invalid *InvalidCredentialsError
	if !errors.As(err, &invalid) || invalid.Attempt != 4 {
		t.Fatalf("fourth failure: expected attempt 4, got %v", err)
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("InvalidCredentialsError should match ErrInvalidCredentials")
	}

	stored := h.store.get("u1")
	if stored.FailedAttempts != 0 {
		t.Fatalf("counter should reset on lock, got %d", stored.FailedAttempts)
	}
	if stored.LockUntil == nil || !stored.LockUntil.Equal(baseTime.Add(15*time.Minute)) {
		t.Fatalf("unexpected lock until %v", stored.LockUntil)
	}

	locked := eventsOf[domain.AccountLockedEvent](h.events)
	if len(locked) != 1 || locked[0].Attempts != 4 {
		t.Fatalf("expected one account locked event, got %+v", locked)
	}
	if got := testutil.ToFloat64(h.metrics.Lockouts); got != 1 {
		t.Fatalf("expected lockout metric 1, got %v", got)
	}
}

func TestVerifyLockedRejectsEvenCorrectPassword(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "Passw0rd!")
	until := baseTime.Add(10*time.Minute + 30*time.Second)
	user.LockUntil = &until
	h := newHarness(t, user)

	_, err := h.credentials.Verify(context.Background(), "alice@example.com", "Passw0rd!")
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected AccountLockedError, got %v", err)
	}
	if locked.MinutesRemaining() != 11 {
		t.Fatalf("expected 11 minutes remaining, got %d", locked.MinutesRemaining())
	}
	if h.store.saves != 0 {
		t.Fatal("locked attempts must not write")
	}
}

func TestVerifySuccessResetsCountersAfterExpiredLock(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "Passw0rd!")
	past := baseTime.Add(-time.Minute)
	user.LockUntil = &past
	user.FailedAttempts = 3
	user.LastLoginMethod = domain.LoginMethodGoogle
	h := newHarness(t, user)

	got, err := h.credentials.Verify(context.Background(), "ALICE@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got.FailedAttempts != 0 || got.LockUntil != nil {
		t.Fatalf("counters not reset: %+v", got)
	}
	stored := h.store.get("u1")
	if stored.FailedAttempts != 0 || stored.LockUntil != nil || stored.LastLoginMethod != domain.LoginMethodPassword {
		t.Fatalf("stored user not reset: %+v", stored)
	}
}

func TestVerifyFederatedOnlyAccountCountsAsFailure(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "")
	user.PasswordHash = ""
	h := newHarness(t, user)

	_, err := h.credentials.Verify(context.Background(), "alice@example.com", "anything")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := h.store.get("u1").FailedAttempts; got != 1 {
		t.Fatalf("expected counted failure, got %d", got)
	}
}

func TestVerifyRetriesOnVersionConflict(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "Passw0rd!"))
	h.store.beforeSave = func(id string) {
		h.store.bump(id, func(u *domain.User) { u.FailedAttempts = 2 })
	}

	_, err := h.credentials.Verify(context.Background(), "alice@example.com", "wrong")
	var invalid *InvalidCredentialsError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidCredentialsError, got %v", err)
	}
	if invalid.Attempt != 3 {
		t.Fatalf("retry should build on the concurrent write, got attempt %d", invalid.Attempt)
	}
	if h.store.conflicts != 1 {
		t.Fatalf("expected one conflict, got %d", h.store.conflicts)
	}
}

func TestVerifyStoreFailureIsDependencyError(t *testing.T) {
	h := newHarness(t, verifiedUser("u1", "alice@example.com", "Passw0rd!"))
	h.store.saveErr = errors.New("connection reset")

	_, err := h.credentials.Verify(context.Background(), "alice@example.com", "Passw0rd!")
	var dep *DependencyError
	if !errors.As(err, &dep) {
		t.Fatalf("expected DependencyError, got %v", err)
	}
}

func TestVerifyUpgradesLegacyHash(t *testing.T) {
	user := verifiedUser("u1", "alice@example.com", "Passw0rd!")
	user.PasswordHash = "legacy:Passw0rd!"
	h := newHarness(t, user)
	h.credentials = NewCredentialVerifier(h.cfg, h.store, legacyHasher{}, h.events, h.metrics, nil)
	h.credentials.WithClock(h.clock.Now)

	if _, err := h.credentials.Verify(context.Background(), "alice@example.com", "Passw0rd!"); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got := h.store.get("u1").PasswordHash; got != "hashed:Passw0rd!" {
		t.Fatalf("expected hash upgraded on login, got %q", got)
	}

	if _, err := h.credentials.Verify(context.Background(), "alice@example.com", "Passw0rd!"); err != nil {
		t.Fatalf("second Verify returned error: %v", err)
	}
}
