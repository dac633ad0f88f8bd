package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/infra/mail"
)

const (
	passwordChangedViaReset  = "reset"
	passwordChangedViaChange = "change"
)

// PasswordService covers the forgotten password flow and authenticated changes.
type PasswordService struct {
	cfg      *config.AppConfig
	users    port.UserStore
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	links    port.LinkSigner
	denylist port.LinkDenylist
	mailer   port.Mailer
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewPasswordService constructs a PasswordService.
func NewPasswordService(cfg *config.AppConfig, users port.UserStore, hasher port.PasswordHasher, policy port.PasswordPolicyValidator, links port.LinkSigner, denylist port.LinkDenylist, mailer port.Mailer, events port.EventPublisher, logger *zap.Logger) *PasswordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordService{
		cfg:      cfg,
		users:    users,
		hasher:   hasher,
		policy:   policy,
		links:    links,
		denylist: denylist,
		mailer:   mailer,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PasswordService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ResetPasswordInput completes a reset link.
type ResetPasswordInput struct {
	UserID          string
	Token           string
	NewPassword     string
	ConfirmPassword string
}

// ChangePasswordInput is an authenticated password change.
type ChangePasswordInput struct {
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// ForgetPassword mails a reset link. Unlike registration, a delivery failure
// fails the request since the link is the only output.
func (s *PasswordService) ForgetPassword(ctx context.Context, email string) error {
	email, err := requireEmail(email)
	if err != nil {
		return err
	}
	user, err := byEmail(s.users, email)(ctx)
	if err != nil {
		return err
	}

	token, err := s.links.SignReset(user.ID)
	if err != nil {
		return dependency("sign reset link", err)
	}
	link := fmt.Sprintf("%s/user/reset/%s/%s", strings.TrimRight(s.cfg.App.FrontendURL, "/"), user.ID, token)
	msg, err := mail.PasswordResetMessage(user.Email, link, s.cfg.Token.ResetTTL)
	if err != nil {
		return dependency("render reset mail", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return dependency("send reset mail", err)
	}

	now := s.now()
	logger.WithContext(ctx).Info("password reset link sent",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)
	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			UserID:            user.ID,
			RequestedAt:       now,
			MaskedDestination: logger.MaskEmail(user.Email),
			ExpiresAt:         now.Add(s.cfg.Token.ResetTTL),
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.logger.Warn("publish password reset requested failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// ResetPassword sets a new password from a reset link and clears the lockout.
func (s *PasswordService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	for _, f := range []struct{ name, value string }{
		{"id", input.UserID},
		{"token", input.Token},
		{"password", input.NewPassword},
		{"password_confirmation", input.ConfirmPassword},
	} {
		if err := requireField(f.name, f.value); err != nil {
			return err
		}
	}
	if input.NewPassword != input.ConfirmPassword {
		return ErrPasswordMismatch
	}

	claims, err := s.links.VerifyReset(input.UserID, input.Token)
	if err != nil {
		return ErrLinkExpired
	}
	user, err := byID(s.users, input.UserID)(ctx)
	if err != nil {
		return err
	}
	if err := s.validatePolicy(input.NewPassword, *user); err != nil {
		return err
	}
	if err := consumeLink(ctx, s.denylist, claims, s.now()); err != nil {
		return err
	}

	return s.store(ctx, user.ID, input.NewPassword, passwordChangedViaReset, nil)
}

// ChangePassword replaces the password after checking the current one.
func (s *PasswordService) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error {
	for _, f := range []struct{ name, value string }{
		{"old_password", input.OldPassword},
		{"password", input.NewPassword},
		{"password_confirmation", input.ConfirmPassword},
	} {
		if err := requireField(f.name, f.value); err != nil {
			return err
		}
	}
	if input.NewPassword != input.ConfirmPassword {
		return ErrPasswordMismatch
	}

	user, err := byID(s.users, userID)(ctx)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return ErrPasswordNotSet
	}
	ok, err := s.hasher.Verify(input.OldPassword, user.PasswordHash)
	if err != nil {
		return dependency("verify password", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := s.validatePolicy(input.NewPassword, *user); err != nil {
		return err
	}

	// The hash checked above must still be current when the new one is written.
	expected := user.PasswordHash
	return s.store(ctx, user.ID, input.NewPassword, passwordChangedViaChange, func(u *domain.User) error {
		if u.PasswordHash != expected {
			return ErrInvalidCredentials
		}
		return nil
	})
}

func (s *PasswordService) validatePolicy(password string, user domain.User) error {
	if s.policy == nil {
		return nil
	}
	if err := s.policy.Validate(password, user.Email, user.FirstName, user.LastName, user.Phone); err != nil {
		return invalid("password", err.Error())
	}
	return nil
}

func (s *PasswordService) store(ctx context.Context, userID, password, via string, guard func(*domain.User) error) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return dependency("hash password", err)
	}

	var changedAt time.Time
	_, err = mutateUser(ctx, s.users, byID(s.users, userID), func(u *domain.User) error {
		if guard != nil {
			if err := guard(u); err != nil {
				return err
			}
		}
		changedAt = s.now()
		u.PasswordHash = hash
		u.FailedAttempts = 0
		u.LockUntil = nil
		u.UpdatedAt = changedAt
		return nil
	}, s.cfg.Store.MaxConflictRetries)
	if err != nil {
		return err
	}

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			UserID:    userID,
			ChangedAt: changedAt,
			Via:       via,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}
