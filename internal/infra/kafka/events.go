package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, out outbound) error {
	ts := out.at
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := out.eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(out.eventType)
	envelope := eventEnvelope{
		EventID:   id,
		EventType: topic,
		UserID:    out.userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   out.payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(bytes),
	}
	if out.userID != "" {
		message.Key = sarama.StringEncoder(out.userID)
	}

	return p.producer.Send(ctx, message)
}

// PublishUserRegistered publishes user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	return p.publish(ctx, userRegisteredPayload(event))
}

// PublishEmailVerified publishes user.email_verified events.
func (p *EventPublisher) PublishEmailVerified(ctx context.Context, event domain.EmailVerifiedEvent) error {
	return p.publish(ctx, emailVerifiedPayload(event))
}

// PublishLoginOTPIssued publishes login.otp_issued events. The code itself is never published.
func (p *EventPublisher) PublishLoginOTPIssued(ctx context.Context, event domain.LoginOTPIssuedEvent) error {
	return p.publish(ctx, loginOTPIssuedPayload(event))
}

// PublishAccountLocked publishes user.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	return p.publish(ctx, accountLockedPayload(event))
}

// PublishSessionAdmitted publishes session.admitted events.
func (p *EventPublisher) PublishSessionAdmitted(ctx context.Context, event domain.SessionAdmittedEvent) error {
	return p.publish(ctx, sessionAdmittedPayload(event))
}

// PublishForceLogoutRequired publishes session.force_logout_required events.
func (p *EventPublisher) PublishForceLogoutRequired(ctx context.Context, event domain.ForceLogoutRequiredEvent) error {
	return p.publish(ctx, forceLogoutRequiredPayload(event))
}

// PublishSessionRevoked publishes session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	return p.publish(ctx, sessionRevokedPayload(event))
}

// PublishPasswordChanged publishes user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	return p.publish(ctx, passwordChangedPayload(event))
}

// PublishPasswordResetRequested publishes user.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	return p.publish(ctx, passwordResetRequestedPayload(event))
}

var _ port.EventPublisher = (*EventPublisher)(nil)
