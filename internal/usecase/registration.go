package usecase

import (
	"context"
	"errors"
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
	"github.com/RASA-RCS/userauth-service/internal/repository"
)

// RegistrationService handles password account sign-up and email confirmation.
type RegistrationService struct {
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

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(cfg *config.AppConfig, users port.UserStore, hasher port.PasswordHasher, policy port.PasswordPolicyValidator, links port.LinkSigner, denylist port.LinkDenylist, mailer port.Mailer, events port.EventPublisher, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
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
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	FirstName  string
	MiddleName string
	LastName   string
	Phone      string
	Email      string
	Password   string
}

// Register creates an unverified password account and mails the
// verification link. A delivery failure is logged; the account stays.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	for _, f := range []struct{ name, value string }{
		{"Fname", input.FirstName},
		{"Lname", input.LastName},
		{"phone", input.Phone},
		{"email", input.Email},
		{"password", input.Password},
	} {
		if err := requireField(f.name, f.value); err != nil {
			return nil, err
		}
	}

	email, err := requireEmail(input.Email)
	if err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(input.Phone)
	if !phonePattern.MatchString(phone) {
		return nil, invalid("phone", "phone must be 10 digits")
	}
	if s.policy != nil {
		if err := s.policy.Validate(input.Password, email, input.FirstName, input.LastName, phone); err != nil {
			return nil, invalid("password", err.Error())
		}
	}

	if _, err := byEmail(s.users, email)(ctx); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, dependency("hash password", err)
	}

	now := s.now()
	user := &domain.User{
		ID:              uuid.NewString(),
		Email:           email,
		FirstName:       strings.TrimSpace(input.FirstName),
		MiddleName:      strings.TrimSpace(input.MiddleName),
		LastName:        strings.TrimSpace(input.LastName),
		Phone:           phone,
		PasswordHash:    hash,
		LastLoginMethod: domain.LoginMethodPassword,
		Sessions:        []domain.Session{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, dependency("create user", err)
	}

	s.sendVerification(ctx, email)

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:            uuid.NewString(),
			UserID:             user.ID,
			Email:              user.Email,
			RegisteredAt:       now,
			RegistrationMethod: domain.LoginMethodPassword,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

func (s *RegistrationService) sendVerification(ctx context.Context, email string) {
	log := logger.WithContext(ctx).With(zap.String("email", logger.MaskEmail(email)))

	token, err := s.links.SignVerification(email)
	if err != nil {
		log.Error("sign verification link failed", zap.Error(err))
		return
	}
	if s.mailer == nil {
		return
	}
	link := fmt.Sprintf("%s/api/auth/verify/%s", strings.TrimRight(s.cfg.App.BaseURL, "/"), token)
	msg, err := mail.VerificationMessage(email, link, s.cfg.Token.VerificationTTL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		log.Warn("verification mail delivery failed", zap.Error(err))
	}
}

// VerifyEmail confirms the address named by a verification link. Each link
// works once.
func (s *RegistrationService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.links.VerifyVerification(token)
	if err != nil {
		return nil, ErrLinkExpired
	}

	if _, err := byEmail(s.users, claims.Subject)(ctx); err != nil {
		return nil, err
	}
	if err := consumeLink(ctx, s.denylist, claims, s.now()); err != nil {
		return nil, err
	}

	var verifiedAt time.Time
	user, err := mutateUser(ctx, s.users, byEmail(s.users, claims.Subject), func(u *domain.User) error {
		if u.IsVerified {
			return errSkipSave
		}
		verifiedAt = s.now()
		u.IsVerified = true
		u.UpdatedAt = verifiedAt
		return nil
	}, s.cfg.Store.MaxConflictRetries)
	if err != nil {
		return nil, err
	}

	if !verifiedAt.IsZero() && s.events != nil {
		event := domain.EmailVerifiedEvent{
			EventID:    uuid.NewString(),
			UserID:     user.ID,
			Email:      user.Email,
			VerifiedAt: verifiedAt,
		}
		if err := s.events.PublishEmailVerified(ctx, event); err != nil {
			s.logger.Warn("publish email verified event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// consumeLink burns the link id until the link would have expired anyway.
func consumeLink(ctx context.Context, denylist port.LinkDenylist, claims port.LinkClaims, now time.Time) error {
	if denylist == nil || claims.ID == "" {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := denylist.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return dependency("consume link", err)
	}
	if !fresh {
		return ErrLinkExpired
	}
	return nil
}
