package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/security"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, message string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Message: message,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// SuccessResponse is the acknowledgement shape used by notification endpoints.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse describes the payload returned by the liveness endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadyResponse reports dependency readiness.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// UserResponse is the public view of an account. Field names follow the
// web client.
type UserResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"Fname"`
	MiddleName      string    `json:"Mname,omitempty"`
	LastName        string    `json:"Lname"`
	Phone           string    `json:"phone,omitempty"`
	PhotoURL        string    `json:"photoURL,omitempty"`
	IsVerified      bool      `json:"isVerified"`
	LastLoginMethod string    `json:"lastLoginMethod,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		MiddleName:      u.MiddleName,
		LastName:        u.LastName,
		Phone:           u.Phone,
		PhotoURL:        u.PhotoURL,
		IsVerified:      u.IsVerified,
		LastLoginMethod: displayLoginMethod(u.LastLoginMethod),
		CreatedAt:       u.CreatedAt,
	}
}

// displayLoginMethod renders the method the way clients show it.
func displayLoginMethod(method domain.LoginMethod) string {
	switch method {
	case domain.LoginMethodPassword:
		return "Email/Password"
	case domain.LoginMethodGoogle:
		return "Google"
	case domain.LoginMethodFacebook:
		return "Facebook"
	case domain.LoginMethodApple:
		return "Apple"
	default:
		return string(method)
	}
}

// SessionResponse describes one device session. The token itself is never
// echoed; ID is its fingerprint.
type SessionResponse struct {
	ID           string    `json:"id"`
	UserAgent    string    `json:"userAgent"`
	IP           string    `json:"ip"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	Current      bool      `json:"current"`
}

func newSessionResponses(sessions []domain.Session, currentToken string) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:           security.TokenFingerprint(s.Token),
			UserAgent:    s.UserAgent,
			IP:           s.IP,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.ExpiresAt,
			CreatedAt:    s.CreatedAt,
			Current:      currentToken != "" && s.Token == currentToken,
		})
	}
	return out
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	FirstName  string `json:"Fname"`
	MiddleName string `json:"Mname"`
	LastName   string `json:"Lname"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// RegisterResponse acknowledges a new account.
type RegisterResponse struct {
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
}

// LoginRequest defines the payload for the password login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OTPSentResponse tells the client to collect the emailed code.
type OTPSentResponse struct {
	OTPSent bool   `json:"otpSent"`
	Email   string `json:"email"`
}

// OTPCode accepts the login code as either a JSON number or a string.
type OTPCode string

// UnmarshalJSON implements json.Unmarshaler.
func (o *OTPCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OTPCode(strings.TrimSpace(s))
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errors.New("otp must be a number or a string")
	}
	*o = OTPCode(strconv.FormatInt(n, 10))
	return nil
}

// VerifyOTPRequest is the second login step.
type VerifyOTPRequest struct {
	Email string  `json:"email"`
	OTP   OTPCode `json:"otp"`
}

// LoginResponse is returned when a session was admitted.
type LoginResponse struct {
	Token           string       `json:"token"`
	User            UserResponse `json:"user"`
	LastLoginMethod string       `json:"lastLoginMethod,omitempty"`
}

// ForceLogoutPromptResponse is returned when another device holds the
// account. The token is only attached once the client confirms.
type ForceLogoutPromptResponse struct {
	ForceLogout bool   `json:"forceLogout"`
	Token       string `json:"token"`
}

// ForceLogoutRequest confirms a pending login.
type ForceLogoutRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// ForceLogoutResponse is returned after the other sessions were dropped.
type ForceLogoutResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    UserResponse `json:"user"`
}

// FederatedLoginRequest carries an identity already verified by the provider.
type FederatedLoginRequest struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// ChangePasswordRequest is the authenticated password change form.
type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ForgetPasswordRequest asks for a reset link.
type ForgetPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes a reset link.
type ResetPasswordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdateLoginMethodRequest records the method picked by the client.
type UpdateLoginMethodRequest struct {
	LoginMethod string `json:"loginMethod"`
}

// UpdateLoginMethodResponse echoes the stored method.
type UpdateLoginMethodResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	LastLoginMethod string `json:"lastLoginMethod"`
}

// SendLogoutEmailRequest names the recipient of the logout notice.
type SendLogoutEmailRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LogoutAllResponse reports how many sessions were dropped.
type LogoutAllResponse struct {
	Message string `json:"message"`
	Revoked int    `json:"revoked"`
}
