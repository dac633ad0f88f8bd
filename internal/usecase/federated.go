package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/repository"
)

// FederatedReconciler maps an identity already verified by Google or
// Facebook onto a local account, creating it on first sight.
type FederatedReconciler struct {
	users    port.UserStore
	events   port.EventPublisher
	logger   *zap.Logger
	attempts int
	now      func() time.Time
}

// NewFederatedReconciler constructs a FederatedReconciler.
func NewFederatedReconciler(cfg *config.AppConfig, users port.UserStore, events port.EventPublisher, logger *zap.Logger) *FederatedReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FederatedReconciler{
		users:    users,
		events:   events,
		logger:   logger,
		attempts: cfg.Store.MaxConflictRetries,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (f *FederatedReconciler) WithClock(clock func() time.Time) {
	if clock != nil {
		f.now = clock
	}
}

// Reconcile returns the local account for identity, linking the provider id
// and recording the provider as the last login method.
func (f *FederatedReconciler) Reconcile(ctx context.Context, identity domain.FederatedIdentity) (*domain.User, error) {
	if !identity.Provider.Valid() {
		return nil, invalid("provider", "unsupported identity provider")
	}
	if strings.TrimSpace(identity.UID) == "" {
		return nil, invalid("uid", "uid is required")
	}
	email, err := requireEmail(identity.Email)
	if err != nil {
		return nil, err
	}
	identity.Email = email

	createConflict := false
	if _, err := byEmail(f.users, email)(ctx); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		user, err := f.create(ctx, identity)
		if !errors.Is(err, repository.ErrDuplicate) {
			return user, err
		}
		// either a concurrent first login created the email, or the
		// provider id is taken; linking tells the two apart
		createConflict = true
	}

	user, err := mutateUser(ctx, f.users, byEmail(f.users, email), func(u *domain.User) error {
		u.SetFederatedID(identity.Provider, identity.UID)
		u.LastLoginMethod = identity.Provider.LoginMethod()
		u.UpdatedAt = f.now()
		return nil
	}, f.attempts)
	switch {
	case errors.Is(err, repository.ErrDuplicate),
		createConflict && errors.Is(err, ErrUserNotFound):
		logger.WithContext(ctx).Warn("federated id linked to another account",
			zap.String("provider", string(identity.Provider)),
			zap.String("email", logger.MaskEmail(email)),
		)
		return nil, ErrIdentityLinked
	case err != nil:
		return nil, err
	}
	return user, nil
}

func (f *FederatedReconciler) create(ctx context.Context, identity domain.FederatedIdentity) (*domain.User, error) {
	now := f.now()
	first, last := domain.SplitDisplayName(identity.DisplayName)
	user := &domain.User{
		ID:              uuid.NewString(),
		Email:           identity.Email,
		FirstName:       first,
		LastName:        last,
		PhotoURL:        strings.TrimSpace(identity.PhotoURL),
		IsVerified:      true,
		LastLoginMethod: identity.Provider.LoginMethod(),
		Sessions:        []domain.Session{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	user.SetFederatedID(identity.Provider, identity.UID)

	if err := f.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, dependency("create user", err)
	}

	logger.WithContext(ctx).Info("federated account created",
		zap.String("user_id", user.ID),
		zap.String("provider", string(identity.Provider)),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	if f.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:            uuid.NewString(),
			UserID:             user.ID,
			Email:              user.Email,
			RegisteredAt:       now,
			RegistrationMethod: user.LastLoginMethod,
			Verified:           true,
		}
		if err := f.events.PublishUserRegistered(ctx, event); err != nil {
			f.logger.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}
