package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/infra/mail"
	"github.com/RASA-RCS/userauth-service/internal/infra/telemetry"
)

// AuthService drives the login state machine: credentials, then the emailed
// code, then admission or the force logout handshake. Federated logins skip
// the code.
type AuthService struct {
	cfg         *config.AppConfig
	users       port.UserStore
	credentials *CredentialVerifier
	otp         *OTPManager
	sessions    *SessionRegistry
	federated   *FederatedReconciler
	tokens      port.TokenIssuer
	mailer      port.Mailer
	metrics     *telemetry.AuthMetrics
	logger      *zap.Logger
	attempts    int
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserStore,
	credentials *CredentialVerifier,
	otp *OTPManager,
	sessions *SessionRegistry,
	federated *FederatedReconciler,
	tokens port.TokenIssuer,
	mailer port.Mailer,
	metrics *telemetry.AuthMetrics,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		cfg:         cfg,
		users:       users,
		credentials: credentials,
		otp:         otp,
		sessions:    sessions,
		federated:   federated,
		tokens:      tokens,
		mailer:      mailer,
		metrics:     metrics,
		logger:      logger,
		attempts:    cfg.Store.MaxConflictRetries,
	}
}

// LoginInput is the password login request.
type LoginInput struct {
	Email    string
	Password string
	Device   domain.Device
}

// LoginResult is either "code sent" or, with OTP disabled, an admission outcome.
type LoginResult struct {
	OTPSent bool
	Email   string
	Outcome *domain.LoginOutcome
}

// VerifyOTPInput is the second step of the password login.
type VerifyOTPInput struct {
	Email  string
	Code   string
	Device domain.Device
}

// ForceLogoutInput confirms a pending admission.
type ForceLogoutInput struct {
	Email  string
	Token  string
	Device domain.Device
}

// Login checks the password and, when OTP is enabled, mails a login code.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	method := string(domain.LoginMethodPassword)

	user, err := s.credentials.Verify(ctx, input.Email, input.Password)
	if err != nil {
		s.metrics.LoginAttempt(method, outcomeOf(err))
		return LoginResult{}, err
	}

	if s.cfg.OTP.Enabled {
		if _, err := s.otp.Issue(ctx, user); err != nil {
			s.metrics.LoginAttempt(method, telemetry.OutcomeError)
			return LoginResult{}, err
		}
		s.metrics.LoginAttempt(method, telemetry.OutcomeOTPSent)
		return LoginResult{OTPSent: true, Email: user.Email}, nil
	}

	outcome, err := s.admit(ctx, user.ID, domain.LoginMethodPassword, input.Device, nil)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Email: user.Email, Outcome: &outcome}, nil
}

// VerifyOTP checks the login code and admits the session. The code is checked
// again and cleared inside the admission write, so it can be used only once.
func (s *AuthService) VerifyOTP(ctx context.Context, input VerifyOTPInput) (domain.LoginOutcome, error) {
	method := string(domain.LoginMethodPassword)

	email, err := requireEmail(input.Email)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	if err := requireField("otp", input.Code); err != nil {
		return domain.LoginOutcome{}, err
	}

	user, err := byEmail(s.users, email)(ctx)
	if err != nil {
		s.metrics.LoginAttempt(method, outcomeOf(err))
		return domain.LoginOutcome{}, err
	}
	if err := s.otp.Check(*user, input.Code); err != nil {
		s.metrics.LoginAttempt(method, telemetry.OutcomeOTPRejected)
		return domain.LoginOutcome{}, err
	}

	outcome, err := s.admit(ctx, user.ID, domain.LoginMethodPassword, input.Device, func(u *domain.User) error {
		if err := s.otp.Check(*u, input.Code); err != nil {
			return err
		}
		s.otp.Clear(u)
		u.LastLoginMethod = domain.LoginMethodPassword
		return nil
	})
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	return outcome, nil
}

// FederatedLogin reconciles an externally verified identity and admits it.
func (s *AuthService) FederatedLogin(ctx context.Context, identity domain.FederatedIdentity, device domain.Device) (domain.LoginOutcome, error) {
	method := string(identity.Provider.LoginMethod())

	user, err := s.federated.Reconcile(ctx, identity)
	if err != nil {
		s.metrics.LoginAttempt(method, outcomeOf(err))
		return domain.LoginOutcome{}, err
	}
	return s.admit(ctx, user.ID, identity.Provider.LoginMethod(), device, nil)
}

// ForceLogout installs the pending token as the only session. The token must
// verify, belong to the account named by email and be the one held back by
// the account's latest force-logout prompt.
func (s *AuthService) ForceLogout(ctx context.Context, input ForceLogoutInput) (domain.LoginOutcome, error) {
	email, err := requireEmail(input.Email)
	if err != nil {
		return domain.LoginOutcome{}, err
	}
	if err := requireField("token", input.Token); err != nil {
		return domain.LoginOutcome{}, err
	}

	user, err := byEmail(s.users, email)(ctx)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	subject, err := s.tokens.Verify(input.Token)
	if err != nil || subject != user.ID {
		return domain.LoginOutcome{}, ErrInvalidToken
	}

	outcome, err := s.sessions.ForceLogout(ctx, user.ID, input.Token, input.Device, nil)
	if err != nil {
		return domain.LoginOutcome{}, err
	}

	logger.WithContext(ctx).Info("force logout completed",
		zap.String("user_id", user.ID),
		zap.String("ip", logger.MaskIP(input.Device.IP)),
	)
	return outcome, nil
}

// Authenticate resolves a bearer token to its user and session, refreshing
// the session's activity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, ErrInvalidToken
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	user, session, err := s.sessions.Touch(ctx, userID, token)
	if err != nil {
		return nil, nil, err
	}
	sanitized := user.Sanitized()
	return &sanitized, session, nil
}

// Logout ends the session bound to token.
func (s *AuthService) Logout(ctx context.Context, userID, token string) error {
	return s.sessions.Terminate(ctx, userID, token)
}

// LogoutAll ends every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	return s.sessions.TerminateAll(ctx, userID)
}

// Sessions lists the user's unexpired sessions.
func (s *AuthService) Sessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessions.List(ctx, userID)
}

// UpdateLoginMethod records the login method chosen by the client.
func (s *AuthService) UpdateLoginMethod(ctx context.Context, userID, raw string) (domain.LoginMethod, error) {
	method, ok := domain.ParseLoginMethod(raw)
	if !ok {
		return "", invalid("loginMethod", "invalid login method")
	}
	_, err := mutateUser(ctx, s.users, byID(s.users, userID), func(u *domain.User) error {
		if u.LastLoginMethod == method {
			return errSkipSave
		}
		u.LastLoginMethod = method
		u.UpdatedAt = time.Now().UTC()
		return nil
	}, s.attempts)
	if err != nil {
		return "", err
	}
	return method, nil
}

// SendLogoutEmail mails a logout confirmation. Unlike the login code, a
// delivery failure is reported to the caller.
func (s *AuthService) SendLogoutEmail(ctx context.Context, email, name string) error {
	email, err := requireEmail(email)
	if err != nil {
		return err
	}
	msg, err := mail.LogoutNoticeMessage(email, name)
	if err != nil {
		return dependency("render logout mail", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return dependency("send logout mail", err)
	}
	return nil
}

func (s *AuthService) admit(ctx context.Context, userID string, method domain.LoginMethod, device domain.Device, prepare func(*domain.User) error) (domain.LoginOutcome, error) {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		s.metrics.LoginAttempt(string(method), telemetry.OutcomeError)
		return domain.LoginOutcome{}, dependency("issue token", err)
	}

	outcome, err := s.sessions.Admit(ctx, userID, token, device, prepare)
	if err != nil {
		s.metrics.LoginAttempt(string(method), outcomeOf(err))
		return domain.LoginOutcome{}, err
	}

	if outcome.Admitted() {
		s.metrics.LoginAttempt(string(method), telemetry.OutcomeAdmitted)
	} else {
		s.metrics.LoginAttempt(string(method), telemetry.OutcomeForceLogoutRequired)
	}
	return outcome, nil
}

func outcomeOf(err error) string {
	var validation *ValidationError
	switch {
	case errors.Is(err, ErrAccountLocked):
		return telemetry.OutcomeLocked
	case errors.Is(err, ErrInvalidCredentials):
		return telemetry.OutcomeInvalidCredentials
	case errors.Is(err, ErrEmailUnverified):
		return telemetry.OutcomeUnverified
	case errors.Is(err, ErrUserNotFound):
		return telemetry.OutcomeUnknownUser
	case errors.Is(err, ErrOTPNotRequested), errors.Is(err, ErrOTPExpired), errors.Is(err, ErrOTPMismatch):
		return telemetry.OutcomeOTPRejected
	case errors.As(err, &validation):
		return telemetry.OutcomeInvalidCredentials
	default:
		return telemetry.OutcomeError
	}
}
