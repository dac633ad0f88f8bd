package usecase

import (
	"context"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/infra/telemetry"
)

// CredentialVerifier checks email/password pairs and owns the lockout counters.
type CredentialVerifier struct {
	users    port.UserStore
	hasher   port.PasswordHasher
	events   port.EventPublisher
	metrics  *telemetry.AuthMetrics
	logger   *zap.Logger
	lockout  config.LockoutSettings
	attempts int
	now      func() time.Time
}

// NewCredentialVerifier constructs a CredentialVerifier.
func NewCredentialVerifier(cfg *config.AppConfig, users port.UserStore, hasher port.PasswordHasher, events port.EventPublisher, metrics *telemetry.AuthMetrics, logger *zap.Logger) *CredentialVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialVerifier{
		users:    users,
		hasher:   hasher,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		lockout:  cfg.Lockout,
		attempts: cfg.Store.MaxConflictRetries,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (v *CredentialVerifier) WithClock(clock func() time.Time) {
	if clock != nil {
		v.now = clock
	}
}

// Verify checks the password for email. Unverified and locked accounts are
// rejected before the password is looked at and leave the counters alone.
// Every other outcome is persisted before returning.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.User, error) {
	email, err := requireEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, invalid("password", "password is required")
	}

	var (
		failure  *InvalidCredentialsError
		lockedAt time.Time
		verified = map[string]bool{}
	)

	user, err := mutateUser(ctx, v.users, byEmail(v.users, email), func(u *domain.User) error {
		failure, lockedAt = nil, time.Time{}
		now := v.now()

		if !u.IsVerified {
			return ErrEmailUnverified
		}
		if u.IsLocked(now) {
			return &AccountLockedError{Until: *u.LockUntil, Remaining: u.LockRemaining(now)}
		}

		match := false
		if u.HasPassword() {
			ok, seen := verified[u.PasswordHash]
			if !seen {
				var verr error
				ok, verr = v.hasher.Verify(password, u.PasswordHash)
				if verr != nil {
					return dependency("verify password", verr)
				}
				verified[u.PasswordHash] = ok
			}
			match = ok
		}

		u.UpdatedAt = now
		if match {
			u.FailedAttempts = 0
			u.LockUntil = nil
			u.LastLoginMethod = domain.LoginMethodPassword
			v.upgradeHash(ctx, u, password)
			return nil
		}

		u.FailedAttempts++
		failure = &InvalidCredentialsError{Attempt: u.FailedAttempts, Limit: v.lockout.DisplayLimit}
		if u.FailedAttempts >= v.lockout.Threshold {
			until := now.Add(v.lockout.Duration)
			u.LockUntil = &until
			u.FailedAttempts = 0
			lockedAt = now
		}
		return nil
	}, v.attempts)
	if err != nil {
		return nil, err
	}

	if failure != nil {
		if !lockedAt.IsZero() {
			v.accountLocked(ctx, user, lockedAt, failure.Attempt)
		}
		logger.WithContext(ctx).Info("password attempt rejected",
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("attempt", failure.Attempt),
			zap.Bool("locked", !lockedAt.IsZero()),
		)
		return nil, failure
	}
	return user, nil
}

// upgradeHash replaces a legacy or under-cost hash while the plaintext is at hand.
// A failure keeps the old hash; the login itself is unaffected.
func (v *CredentialVerifier) upgradeHash(ctx context.Context, u *domain.User, password string) {
	rehasher, ok := v.hasher.(port.PasswordRehasher)
	if !ok || !rehasher.NeedsRehash(u.PasswordHash) {
		return
	}
	upgraded, err := v.hasher.Hash(password)
	if err != nil {
		logger.WithContext(ctx).Warn("password rehash failed", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	u.PasswordHash = upgraded
}

func (v *CredentialVerifier) accountLocked(ctx context.Context, user *domain.User, at time.Time, attempts int) {
	v.metrics.Lockout()
	if v.events == nil {
		return
	}
	event := domain.AccountLockedEvent{
		EventID:     uuid.NewString(),
		UserID:      user.ID,
		LockedAt:    at,
		LockedUntil: *user.LockUntil,
		Attempts:    attempts,
	}
	if err := v.events.PublishAccountLocked(ctx, event); err != nil {
		v.logger.Warn("publish account locked event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
