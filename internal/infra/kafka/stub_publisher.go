package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(out outbound) error {
	at := out.at
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", out.eventType),
		zap.String("user_id", out.userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", out.payload),
	)
	return nil
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	return p.logEvent(userRegisteredPayload(event))
}

func (p *StubPublisher) PublishEmailVerified(_ context.Context, event domain.EmailVerifiedEvent) error {
	return p.logEvent(emailVerifiedPayload(event))
}

func (p *StubPublisher) PublishLoginOTPIssued(_ context.Context, event domain.LoginOTPIssuedEvent) error {
	return p.logEvent(loginOTPIssuedPayload(event))
}

func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	return p.logEvent(accountLockedPayload(event))
}

func (p *StubPublisher) PublishSessionAdmitted(_ context.Context, event domain.SessionAdmittedEvent) error {
	return p.logEvent(sessionAdmittedPayload(event))
}

func (p *StubPublisher) PublishForceLogoutRequired(_ context.Context, event domain.ForceLogoutRequiredEvent) error {
	return p.logEvent(forceLogoutRequiredPayload(event))
}

func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	return p.logEvent(sessionRevokedPayload(event))
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	return p.logEvent(passwordChangedPayload(event))
}

func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	return p.logEvent(passwordResetRequestedPayload(event))
}

var _ port.EventPublisher = (*StubPublisher)(nil)
