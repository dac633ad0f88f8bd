package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

// LoginService is the part of usecase.AuthService the HTTP layer drives.
type LoginService interface {
	Login(ctx context.Context, input usecase.LoginInput) (usecase.LoginResult, error)
	VerifyOTP(ctx context.Context, input usecase.VerifyOTPInput) (domain.LoginOutcome, error)
	FederatedLogin(ctx context.Context, identity domain.FederatedIdentity, device domain.Device) (domain.LoginOutcome, error)
	ForceLogout(ctx context.Context, input usecase.ForceLogoutInput) (domain.LoginOutcome, error)
	Logout(ctx context.Context, userID, token string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	Sessions(ctx context.Context, userID string) ([]domain.Session, error)
	UpdateLoginMethod(ctx context.Context, userID, raw string) (domain.LoginMethod, error)
	SendLogoutEmail(ctx context.Context, email, name string) error
}

// SignupService is the part of usecase.RegistrationService the HTTP layer drives.
type SignupService interface {
	Register(ctx context.Context, input usecase.RegisterInput) (*domain.User, error)
	VerifyEmail(ctx context.Context, token string) (*domain.User, error)
}

// CredentialService is the part of usecase.PasswordService the HTTP layer drives.
type CredentialService interface {
	ForgetPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, input usecase.ResetPasswordInput) error
	ChangePassword(ctx context.Context, userID string, input usecase.ChangePasswordInput) error
}

var (
	_ LoginService      = (*usecase.AuthService)(nil)
	_ SignupService     = (*usecase.RegistrationService)(nil)
	_ CredentialService = (*usecase.PasswordService)(nil)
)

func deviceFrom(c *gin.Context) domain.Device {
	return domain.Device{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}
}
