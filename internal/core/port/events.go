package port

import (
	"context"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishEmailVerified(ctx context.Context, event domain.EmailVerifiedEvent) error
	PublishLoginOTPIssued(ctx context.Context, event domain.LoginOTPIssuedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishSessionAdmitted(ctx context.Context, event domain.SessionAdmittedEvent) error
	PublishForceLogoutRequired(ctx context.Context, event domain.ForceLogoutRequiredEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
}
