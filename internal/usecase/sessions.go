package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/infra/security"
	"github.com/RASA-RCS/userauth-service/internal/infra/telemetry"
)

// SessionRegistry manages the session list embedded in each user and
// enforces the single active device policy.
type SessionRegistry struct {
	users      port.UserStore
	events     port.EventPublisher
	metrics    *telemetry.AuthMetrics
	logger     *zap.Logger
	ttl        time.Duration
	inactivity time.Duration
	attempts   int
	now        func() time.Time
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(cfg *config.AppConfig, users port.UserStore, events port.EventPublisher, metrics *telemetry.AuthMetrics, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		users:      users,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		ttl:        cfg.Session.TTL,
		inactivity: cfg.Session.InactivityWindow,
		attempts:   cfg.Store.MaxConflictRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (r *SessionRegistry) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Admit binds token to a new session unless another session survives the
// hard-expiry purge, in which case the token is held as the user's pending
// admission and returned unattached with OutcomeForceLogoutRequired. prepare
// runs inside the same write on both paths; an error from it aborts the
// admission.
func (r *SessionRegistry) Admit(ctx context.Context, userID, token string, device domain.Device, prepare func(*domain.User) error) (domain.LoginOutcome, error) {
	var (
		expired []domain.Session
		blocked bool
		created domain.Session
		at      time.Time
	)

	user, err := mutateUser(ctx, r.users, byID(r.users, userID), func(u *domain.User) error {
		at = r.now()
		expired = u.PurgeExpired(at)
		blocked = false

		if prepare != nil {
			if err := prepare(u); err != nil {
				return err
			}
		}

		if len(u.Sessions) > 0 {
			blocked = true
			u.HoldPendingAdmission(security.HashToken(token), at.Add(r.ttl))
			u.UpdatedAt = at
			return nil
		}

		created = domain.NewSession(token, device, at, r.ttl)
		u.Sessions = append(u.Sessions, created)
		u.ClearPendingAdmission()
		u.UpdatedAt = at
		return nil
	}, r.attempts)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	r.revoked(ctx, user.ID, domain.RevokeReasonExpired, len(expired), at)

	if blocked {
		r.publishForceLogoutRequired(ctx, user, device, at)
		return domain.LoginOutcome{Kind: domain.OutcomeForceLogoutRequired, Token: token, User: user.Sanitized()}, nil
	}

	r.publishAdmitted(ctx, user, created, false)
	logger.WithContext(ctx).Info("session admitted",
		zap.String("user_id", user.ID),
		zap.String("token", security.TokenFingerprint(token)),
		zap.String("ip", logger.MaskIP(device.IP)),
	)
	return domain.LoginOutcome{Kind: domain.OutcomeAdmitted, Token: token, User: user.Sanitized(), Session: &created}, nil
}

// ForceLogout replaces every session of the user with a single one built from
// the pending token and device. Only the token held by the latest blocked
// Admit is accepted, once; anything else fails with ErrInvalidToken.
func (r *SessionRegistry) ForceLogout(ctx context.Context, userID, token string, device domain.Device, prepare func(*domain.User) error) (domain.LoginOutcome, error) {
	var (
		dropped int
		created domain.Session
	)

	user, err := mutateUser(ctx, r.users, byID(r.users, userID), func(u *domain.User) error {
		at := r.now()
		if !u.PendingAdmissionMatches(security.HashToken(token), at) {
			return ErrInvalidToken
		}
		if prepare != nil {
			if err := prepare(u); err != nil {
				return err
			}
		}
		u.ClearPendingAdmission()
		dropped = len(u.Sessions)
		created = domain.NewSession(token, device, at, r.ttl)
		u.Sessions = []domain.Session{created}
		u.UpdatedAt = at
		return nil
	}, r.attempts)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	r.metrics.ForceLogout()
	r.revoked(ctx, user.ID, domain.RevokeReasonForceLogout, dropped, created.CreatedAt)
	r.publishAdmitted(ctx, user, created, true)

	return domain.LoginOutcome{Kind: domain.OutcomeAdmitted, Token: token, User: user.Sanitized(), Session: &created}, nil
}

// Touch records activity on the session holding token. A session idle past
// the inactivity window is evicted and ErrSessionExpired returned.
func (r *SessionRegistry) Touch(ctx context.Context, userID, token string) (*domain.User, *domain.Session, error) {
	var (
		expired []domain.Session
		idle    bool
		failure error
		index   int
		at      time.Time
	)

	user, err := mutateUser(ctx, r.users, byID(r.users, userID), func(u *domain.User) error {
		at = r.now()
		idle, failure = false, nil
		expired = u.PurgeExpired(at)

		index = u.FindSession(token)
		if index < 0 {
			for _, s := range expired {
				if s.Token == token {
					failure = ErrSessionExpired
					break
				}
			}
			if failure == nil {
				failure = ErrSessionNotFound
			}
			if len(expired) == 0 {
				return errSkipSave
			}
			u.UpdatedAt = at
			return nil
		}

		if u.Sessions[index].Idle(at, r.inactivity) {
			u.Sessions = append(u.Sessions[:index], u.Sessions[index+1:]...)
			idle = true
			failure = ErrSessionInactive
			u.UpdatedAt = at
			return nil
		}

		u.Sessions[index].Touch(at)
		u.UpdatedAt = at
		return nil
	}, r.attempts)
	if err != nil {
		return nil, nil, err
	}

	r.revoked(ctx, user.ID, domain.RevokeReasonExpired, len(expired), at)
	if idle {
		r.revoked(ctx, user.ID, domain.RevokeReasonInactivity, 1, at)
	}
	if failure != nil {
		return nil, nil, failure
	}

	session := user.Sessions[index]
	return user, &session, nil
}

// Terminate removes the session holding token.
func (r *SessionRegistry) Terminate(ctx context.Context, userID, token string) error {
	var at time.Time
	user, err := mutateUser(ctx, r.users, byID(r.users, userID), func(u *domain.User) error {
		at = r.now()
		idx := u.FindSession(token)
		if idx < 0 {
			return ErrSessionNotFound
		}
		u.Sessions = append(u.Sessions[:idx], u.Sessions[idx+1:]...)
		u.UpdatedAt = at
		return nil
	}, r.attempts)
	if err != nil {
		return err
	}

	r.revoked(ctx, user.ID, domain.RevokeReasonLogout, 1, at)
	return nil
}

// TerminateAll clears every session of the user, and any pending admission,
// and returns how many sessions were removed.
func (r *SessionRegistry) TerminateAll(ctx context.Context, userID string) (int, error) {
	var (
		count int
		at    time.Time
	)
	user, err := mutateUser(ctx, r.users, byID(r.users, userID), func(u *domain.User) error {
		at = r.now()
		count = len(u.Sessions)
		if count == 0 && u.PendingToken == "" {
			return errSkipSave
		}
		u.Sessions = []domain.Session{}
		u.ClearPendingAdmission()
		u.UpdatedAt = at
		return nil
	}, r.attempts)
	if err != nil {
		return 0, err
	}

	r.revoked(ctx, user.ID, domain.RevokeReasonLogoutAll, count, at)
	return count, nil
}

// List returns the sessions that have not reached their absolute expiry.
func (r *SessionRegistry) List(ctx context.Context, userID string) ([]domain.Session, error) {
	user, err := byID(r.users, userID)(ctx)
	if err != nil {
		return nil, err
	}
	now := r.now()
	out := make([]domain.Session, 0, len(user.Sessions))
	for _, s := range user.Sessions {
		if s.Valid(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Sweep purges expired and idle sessions across every user holding sessions.
// A failing user is logged and skipped; the failures are returned joined.
func (r *SessionRegistry) Sweep(ctx context.Context) (int, error) {
	ids, err := r.users.ListIDsWithSessions(ctx)
	if err != nil {
		return 0, dependency("list users with sessions", err)
	}

	var (
		total int
		errs  []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var expired, idle []domain.Session
		var at time.Time
		_, err := mutateUser(ctx, r.users, byID(r.users, id), func(u *domain.User) error {
			at = r.now()
			expired = u.PurgeExpired(at)
			idle = u.PurgeIdle(at, r.inactivity)
			if len(expired) == 0 && len(idle) == 0 {
				return errSkipSave
			}
			u.UpdatedAt = at
			return nil
		}, r.attempts)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			r.logger.Warn("session sweep failed for user", zap.String("user_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("sweep user %s: %w", id, err))
			continue
		}

		r.revoked(ctx, id, domain.RevokeReasonExpired, len(expired), at)
		r.revoked(ctx, id, domain.RevokeReasonInactivity, len(idle), at)
		total += len(expired) + len(idle)
	}
	return total, errors.Join(errs...)
}

func (r *SessionRegistry) revoked(ctx context.Context, userID, reason string, count int, at time.Time) {
	if count <= 0 {
		return
	}
	r.metrics.SessionsEvict(reason, count)
	if r.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		Reason:    reason,
		Count:     count,
		RevokedAt: at,
	}
	if err := r.events.PublishSessionRevoked(ctx, event); err != nil {
		r.logger.Warn("publish session revoked event failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (r *SessionRegistry) publishAdmitted(ctx context.Context, user *domain.User, session domain.Session, forced bool) {
	if r.events == nil {
		return
	}
	event := domain.SessionAdmittedEvent{
		EventID:     uuid.NewString(),
		UserID:      user.ID,
		Method:      user.LastLoginMethod,
		AdmittedAt:  session.CreatedAt,
		ExpiresAt:   session.ExpiresAt,
		IPAddress:   session.IP,
		UserAgent:   session.UserAgent,
		ForceLogout: forced,
	}
	if err := r.events.PublishSessionAdmitted(ctx, event); err != nil {
		r.logger.Warn("publish session admitted event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (r *SessionRegistry) publishForceLogoutRequired(ctx context.Context, user *domain.User, device domain.Device, at time.Time) {
	if r.events == nil {
		return
	}
	event := domain.ForceLogoutRequiredEvent{
		EventID:        uuid.NewString(),
		UserID:         user.ID,
		Method:         user.LastLoginMethod,
		ActiveSessions: len(user.Sessions),
		RequestedAt:    at,
		IPAddress:      device.IP,
	}
	if err := r.events.PublishForceLogoutRequired(ctx, event); err != nil {
		r.logger.Warn("publish force logout required event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
