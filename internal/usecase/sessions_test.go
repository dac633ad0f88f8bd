package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/security"
)

var (
	deviceA = domain.Device{UserAgent: "Firefox", IP: "10.0.0.1"}
	deviceB = domain.Device{UserAgent: "Safari", IP: "10.0.0.2"}
)

func userWithSessions(sessions ...domain.Session) domain.User {
	u := verifiedUser("u1", "alice@example.com", "pw")
	u.Sessions = sessions
	return u
}

func TestAdmitWithoutSessionsAppends(t *testing.T) {
	h := newHarness(t, userWithSessions())

	outcome, err := h.sessions.Admit(context.Background(), "u1", "tok-a", deviceA, nil)
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !outcome.Admitted() || outcome.Token != "tok-a" || outcome.Session == nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	stored := h.store.get("u1")
	if len(stored.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(stored.Sessions))
	}
	s := stored.Sessions[0]
	if s.Token != "tok-a" || s.UserAgent != "Firefox" || s.IP != "10.0.0.1" {
		t.Fatalf("unexpected session %+v", s)
	}
	if !s.LastActivity.Equal(baseTime) || !s.ExpiresAt.Equal(baseTime.Add(48*time.Hour)) {
		t.Fatalf("unexpected timestamps %+v", s)
	}
	if outcome.User.PasswordHash != "" {
		t.Fatal("outcome user must be sanitized")
	}
	if len(eventsOf[domain.SessionAdmittedEvent](h.events)) != 1 {
		t.Fatal("expected a session admitted event")
	}
}

func TestAdmitWithLiveSessionRequiresForceLogout(t *testing.T) {
	existing := domain.NewSession("tok-a", deviceA, baseTime.Add(-time.Hour), 48*time.Hour)
	h := newHarness(t, userWithSessions(existing))

	for i := 0; i < 2; i++ {
		outcome, err := h.sessions.Admit(context.Background(), "u1", "tok-b", deviceB, nil)
		if err != nil {
			t.Fatalf("Admit returned error: %v", err)
		}
		if outcome.Kind != domain.OutcomeForceLogoutRequired || outcome.Token != "tok-b" || outcome.Session != nil {
			t.Fatalf("unexpected outcome %+v", outcome)
		}
	}

	stored := h.store.get("u1")
	if len(stored.Sessions) != 1 || stored.Sessions[0] != existing {
		t.Fatalf("session list must not change: %+v", stored.Sessions)
	}
	if !stored.PendingAdmissionMatches(security.HashToken("tok-b"), baseTime) {
		t.Fatalf("blocked token should be held as the pending admission, got %q", stored.PendingToken)
	}
	if n := len(eventsOf[domain.ForceLogoutRequiredEvent](h.events)); n != 2 {
		t.Fatalf("expected two force logout required events, got %d", n)
	}
}

func TestAdmitIdleButUnexpiredSessionStillBlocks(t *testing.T) {
	idle := domain.NewSession("tok-a", deviceA, baseTime.Add(-time.Hour), 48*time.Hour)
	h := newHarness(t, userWithSessions(idle))

	outcome, err := h.sessions.Admit(context.Background(), "u1", "tok-b", deviceB, nil)
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if outcome.Admitted() {
		t.Fatal("admission only purges hard-expired sessions")
	}
}

func TestAdmitPurgesExpiredSessionsFirst(t *testing.T) {
	expired := domain.NewSession("tok-old", deviceA, baseTime.Add(-72*time.Hour), 48*time.Hour)
	h := newHarness(t, userWithSessions(expired))

	outcome, err := h.sessions.Admit(context.Background(), "u1", "tok-b", deviceB, nil)
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if !outcome.Admitted() {
		t.Fatalf("expected admission, got %+v", outcome)
	}
	stored := h.store.get("u1")
	if len(stored.Sessions) != 1 || stored.Sessions[0].Token != "tok-b" {
		t.Fatalf("unexpected sessions %+v", stored.Sessions)
	}
	if got := testutil.ToFloat64(h.metrics.SessionsEvicted.WithLabelValues(domain.RevokeReasonExpired)); got != 1 {
		t.Fatalf("expected one expired eviction, got %v", got)
	}
}

func TestAdmitPrepareRunsInSameWriteOnBothPaths(t *testing.T) {
	existing := domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour)
	h := newHarness(t, userWithSessions(existing))
	code := 123456
	expiry := baseTime.Add(time.Minute)
	h.store.bump("u1", func(u *domain.User) { u.LoginOTP = &code; u.LoginOTPExpiry = &expiry })

	outcome, err := h.sessions.Admit(context.Background(), "u1", "tok-b", deviceB, func(u *domain.User) error {
		u.ClearLoginChallenge()
		return nil
	})
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if outcome.Admitted() {
		t.Fatal("expected force logout required")
	}
	stored := h.store.get("u1")
	if stored.LoginOTP != nil {
		t.Fatal("prepare mutation should be persisted on the force logout path")
	}
	if h.store.saves != 1 {
		t.Fatalf("expected a single write, got %d", h.store.saves)
	}
}

func TestAdmitPrepareErrorAborts(t *testing.T) {
	h := newHarness(t, userWithSessions())
	boom := errors.New("nope")
	_, err := h.sessions.Admit(context.Background(), "u1", "tok", deviceA, func(*domain.User) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected prepare error, got %v", err)
	}
	if len(h.store.get("u1").Sessions) != 0 {
		t.Fatal("aborted admission must not write")
	}
}

func TestConcurrentAdmissionCannotBothSucceed(t *testing.T) {
	h := newHarness(t, userWithSessions())
	// Another request admits a session between our read and our write.
	h.store.beforeSave = func(id string) {
		h.store.bump(id, func(u *domain.User) {
			u.Sessions = append(u.Sessions, domain.NewSession("tok-other", deviceA, baseTime, 48*time.Hour))
		})
	}

	outcome, err := h.sessions.Admit(context.Background(), "u1", "tok-b", deviceB, nil)
	if err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if outcome.Admitted() {
		t.Fatal("retry after conflict must observe the concurrent session")
	}
	if len(h.store.get("u1").Sessions) != 1 {
		t.Fatal("expected only the concurrent session")
	}
}

func TestForceLogoutLeavesExactlyOneSession(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		var sessions []domain.Session
		for i := 0; i < n; i++ {
			sessions = append(sessions, domain.NewSession(string(rune('a'+i)), deviceA, baseTime, 48*time.Hour))
		}
		h := newHarness(t, userWithSessions(sessions...))
		h.store.bump("u1", func(u *domain.User) {
			u.HoldPendingAdmission(security.HashToken("tok-new"), baseTime.Add(48*time.Hour))
		})

		outcome, err := h.sessions.ForceLogout(context.Background(), "u1", "tok-new", deviceB, nil)
		if err != nil {
			t.Fatalf("n=%d: ForceLogout returned error: %v", n, err)
		}
		if !outcome.Admitted() {
			t.Fatalf("n=%d: expected admitted outcome", n)
		}
		stored := h.store.get("u1")
		if len(stored.Sessions) != 1 || stored.Sessions[0].Token != "tok-new" || stored.Sessions[0].IP != deviceB.IP {
			t.Fatalf("n=%d: unexpected sessions %+v", n, stored.Sessions)
		}
	}
}

func TestForceLogoutAcceptsOnlyTheHeldToken(t *testing.T) {
	existing := domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour)
	h := newHarness(t, userWithSessions(existing))
	ctx := context.Background()

	if _, err := h.sessions.ForceLogout(ctx, "u1", "tok-b", deviceB, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without a blocked admission, got %v", err)
	}

	if _, err := h.sessions.Admit(ctx, "u1", "tok-b", deviceB, nil); err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if _, err := h.sessions.ForceLogout(ctx, "u1", "tok-a", deviceA, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for a token other than the held one, got %v", err)
	}
	if stored := h.store.get("u1"); len(stored.Sessions) != 1 || stored.Sessions[0].Token != "tok-a" {
		t.Fatalf("rejected confirmation must not change sessions: %+v", stored.Sessions)
	}

	if _, err := h.sessions.ForceLogout(ctx, "u1", "tok-b", deviceB, nil); err != nil {
		t.Fatalf("ForceLogout returned error: %v", err)
	}
	if stored := h.store.get("u1"); stored.PendingToken != "" || stored.PendingTokenExpiry != nil {
		t.Fatal("confirmation should consume the pending admission")
	}
	if _, err := h.sessions.ForceLogout(ctx, "u1", "tok-b", deviceB, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
}

func TestForceLogoutRejectsLapsedHold(t *testing.T) {
	h := newHarness(t, userWithSessions(domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour)))
	ctx := context.Background()

	if _, err := h.sessions.Admit(ctx, "u1", "tok-b", deviceB, nil); err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	h.clock.Advance(48 * time.Hour)

	if _, err := h.sessions.ForceLogout(ctx, "u1", "tok-b", deviceB, nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken once the hold lapsed, got %v", err)
	}
}

func TestAdmissionAndLogoutAllDropPendingAdmission(t *testing.T) {
	h := newHarness(t, userWithSessions(domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour)))
	ctx := context.Background()

	if _, err := h.sessions.Admit(ctx, "u1", "tok-b", deviceB, nil); err != nil {
		t.Fatalf("Admit returned error: %v", err)
	}
	if _, err := h.sessions.TerminateAll(ctx, "u1"); err != nil {
		t.Fatalf("TerminateAll returned error: %v", err)
	}
	if stored := h.store.get("u1"); stored.PendingToken != "" {
		t.Fatal("logout-all should drop the pending admission")
	}

	h.store.bump("u1", func(u *domain.User) {
		u.HoldPendingAdmission(security.HashToken("tok-stale"), baseTime.Add(time.Hour))
	})
	outcome, err := h.sessions.Admit(ctx, "u1", "tok-c", deviceA, nil)
	if err != nil || !outcome.Admitted() {
		t.Fatalf("expected admission, got %+v, %v", outcome, err)
	}
	if stored := h.store.get("u1"); stored.PendingToken != "" {
		t.Fatal("a direct admission should drop a stale pending admission")
	}
}

func TestTouchRefreshesActivity(t *testing.T) {
	h := newHarness(t, userWithSessions(domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour)))
	h.clock.Advance(4 * time.Minute)

	user, session, err := h.sessions.Touch(context.Background(), "u1", "tok-a")
	if err != nil {
		t.Fatalf("Touch returned error: %v", err)
	}
	if user.ID != "u1" || !session.LastActivity.Equal(baseTime.Add(4*time.Minute)) {
		t.Fatalf("unexpected touch result %+v", session)
	}
	if !h.store.get("u1").Sessions[0].LastActivity.Equal(baseTime.Add(4 * time.Minute)) {
		t.Fatal("activity not persisted")
	}
}

func TestTouchEvictsIdleSession(t *testing.T) {
	h := newHarness(t, userWithSessions(domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour)))
	h.clock.Advance(5*time.Minute + time.Second)

	_, _, err := h.sessions.Touch(context.Background(), "u1", "tok-a")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if len(h.store.get("u1").Sessions) != 0 {
		t.Fatal("idle session should be removed from the store")
	}
	revoked := eventsOf[domain.SessionRevokedEvent](h.events)
	if len(revoked) != 1 || revoked[0].Reason != domain.RevokeReasonInactivity {
		t.Fatalf("unexpected revoked events %+v", revoked)
	}
}

func TestTouchUnknownAndExpiredTokens(t *testing.T) {
	h := newHarness(t, userWithSessions(domain.NewSession("tok-old", deviceA, baseTime.Add(-49*time.Hour), 48*time.Hour)))

	if _, _, err := h.sessions.Touch(context.Background(), "u1", "tok-old"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired for hard-expired token, got %v", err)
	}
	if len(h.store.get("u1").Sessions) != 0 {
		t.Fatal("expired session should be purged")
	}
	if _, _, err := h.sessions.Touch(context.Background(), "u1", "tok-unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := h.sessions.Touch(context.Background(), "nobody", "tok"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestTerminateAndTerminateAll(t *testing.T) {
	h := newHarness(t, userWithSessions(
		domain.NewSession("tok-a", deviceA, baseTime, 48*time.Hour),
		domain.NewSession("tok-b", deviceB, baseTime, 48*time.Hour),
		domain.NewSession("tok-c", deviceB, baseTime, 48*time.Hour),
	))
	ctx := context.Background()

	if err := h.sessions.Terminate(ctx, "u1", "tok-b"); err != nil {
		t.Fatalf("Terminate returned error: %v", err)
	}
	stored := h.store.get("u1")
	if len(stored.Sessions) != 2 || stored.FindSession("tok-b") != -1 {
		t.Fatalf("unexpected sessions %+v", stored.Sessions)
	}
	if err := h.sessions.Terminate(ctx, "u1", "tok-b"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	n, err := h.sessions.TerminateAll(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("TerminateAll = %d, %v", n, err)
	}
	if len(h.store.get("u1").Sessions) != 0 {
		t.Fatal("expected empty session list")
	}
	if n, err := h.sessions.TerminateAll(ctx, "u1"); err != nil || n != 0 {
		t.Fatalf("second TerminateAll = %d, %v", n, err)
	}
}

func TestListFiltersExpired(t *testing.T) {
	h := newHarness(t, userWithSessions(
		domain.NewSession("live", deviceA, baseTime, 48*time.Hour),
		domain.NewSession("dead", deviceB, baseTime.Add(-49*time.Hour), 48*time.Hour),
	))

	sessions, err := h.sessions.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Token != "live" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestSweepRemovesExpiredAndIdle(t *testing.T) {
	alice := userWithSessions(
		domain.NewSession("live", deviceA, baseTime, 48*time.Hour),
		domain.NewSession("idle", deviceA, baseTime.Add(-10*time.Minute), 48*time.Hour),
		domain.NewSession("dead", deviceB, baseTime.Add(-49*time.Hour), 48*time.Hour),
	)
	bob := verifiedUser("u2", "bob@example.com", "pw")
	bob.Sessions = []domain.Session{domain.NewSession("bob", deviceB, baseTime, 48*time.Hour)}
	h := newHarness(t, alice, bob)

	removed, err := h.sessions.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if got := h.store.get("u1").Sessions; len(got) != 1 || got[0].Token != "live" {
		t.Fatalf("unexpected alice sessions %+v", got)
	}
	if len(h.store.get("u2").Sessions) != 1 {
		t.Fatal("bob's live session must survive")
	}
	if h.store.saves != 1 {
		t.Fatalf("only alice should be written, got %d writes", h.store.saves)
	}
}
