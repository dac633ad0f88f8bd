package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/infra/mail"
	"github.com/RASA-RCS/userauth-service/internal/infra/security"
	"github.com/RASA-RCS/userauth-service/internal/infra/telemetry"
)

// OTPManager issues and checks the emailed login code.
type OTPManager struct {
	users    port.UserStore
	mailer   port.Mailer
	events   port.EventPublisher
	metrics  *telemetry.AuthMetrics
	logger   *zap.Logger
	ttl      time.Duration
	attempts int
	generate func() (int, error)
	now      func() time.Time
}

// NewOTPManager constructs an OTPManager.
func NewOTPManager(cfg *config.AppConfig, users port.UserStore, mailer port.Mailer, events port.EventPublisher, metrics *telemetry.AuthMetrics, logger *zap.Logger) *OTPManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPManager{
		users:    users,
		mailer:   mailer,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		ttl:      cfg.OTP.TTL,
		attempts: cfg.Store.MaxConflictRetries,
		generate: security.GenerateOTP,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (m *OTPManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// WithGenerator overrides the code source for deterministic tests.
func (m *OTPManager) WithGenerator(generate func() (int, error)) {
	if generate != nil {
		m.generate = generate
	}
}

// Issue stores a fresh code on the user, replacing any pending one, and mails
// it. Delivery failures are logged only: the code is usable once persisted.
func (m *OTPManager) Issue(ctx context.Context, user *domain.User) (int, error) {
	code, err := m.generate()
	if err != nil {
		return 0, dependency("generate otp", err)
	}

	var issuedAt, expiresAt time.Time
	saved, err := mutateUser(ctx, m.users, byID(m.users, user.ID), func(u *domain.User) error {
		issuedAt = m.now()
		expiresAt = issuedAt.Add(m.ttl)
		c := code
		u.LoginOTP = &c
		u.LoginOTPExpiry = &expiresAt
		u.UpdatedAt = issuedAt
		return nil
	}, m.attempts)
	if err != nil {
		return 0, err
	}
	*user = *saved

	delivered := m.deliver(ctx, saved.Email, code)
	m.metrics.OTPIssue()

	if m.events != nil {
		event := domain.LoginOTPIssuedEvent{
			EventID:   uuid.NewString(),
			UserID:    saved.ID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			Delivered: delivered,
		}
		if err := m.events.PublishLoginOTPIssued(ctx, event); err != nil {
			m.logger.Warn("publish otp issued event failed", zap.String("user_id", saved.ID), zap.Error(err))
		}
	}
	return code, nil
}

func (m *OTPManager) deliver(ctx context.Context, email string, code int) bool {
	if m.mailer == nil {
		return false
	}
	msg, err := mail.LoginOTPMessage(email, code, m.ttl)
	if err == nil {
		err = m.mailer.Send(ctx, msg)
	}
	if err != nil {
		logger.WithContext(ctx).Warn("otp mail delivery failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Check compares submitted against the pending code. Both sides are compared
// as integers so "012345" and "12345" are equal. It never mutates user.
func (m *OTPManager) Check(user domain.User, submitted string) error {
	if user.LoginOTP == nil || user.LoginOTPExpiry == nil {
		return ErrOTPNotRequested
	}
	if m.now().After(*user.LoginOTPExpiry) {
		return ErrOTPExpired
	}
	submitted = strings.TrimSpace(submitted)
	if !isDigits(submitted) {
		return ErrOTPMismatch
	}
	value, err := strconv.Atoi(submitted)
	if err != nil || value != *user.LoginOTP {
		return ErrOTPMismatch
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Clear drops the pending code. The caller persists it with its own write.
func (m *OTPManager) Clear(user *domain.User) {
	user.ClearLoginChallenge()
}
