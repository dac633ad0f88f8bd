package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

var (
	loginErrorCases = []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "User not registered!"},
		{Err: usecase.ErrEmailUnverified, Status: http.StatusBadRequest, Message: "Email verification pending"},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "Invalid credentials!"},
	}

	verifyOTPErrorCases = []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "User not found"},
		{Err: usecase.ErrOTPNotRequested, Status: http.StatusBadRequest, Message: "OTP not requested"},
		{Err: usecase.ErrOTPExpired, Status: http.StatusBadRequest, Message: "OTP expired"},
		{Err: usecase.ErrOTPMismatch, Status: http.StatusBadRequest, Message: "Invalid OTP"},
	}

	forceLogoutErrorCases = []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "User not found"},
		{Err: usecase.ErrInvalidToken, Status: http.StatusBadRequest, Message: "Invalid or expired token"},
	}
)

func federatedErrorCases(provider domain.Provider) []ErrorCase {
	name := "Google"
	if provider == domain.ProviderFacebook {
		name = "Facebook"
	}
	return []ErrorCase{
		{Err: usecase.ErrIdentityLinked, Status: http.StatusBadRequest, Message: "This " + name + " account is linked to another user"},
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "User not found"},
	}
}

// AuthHandler exposes the login endpoints: password, code, federated and
// the force logout confirmation.
type AuthHandler struct {
	auth LoginService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth LoginService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds the login routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users/login", h.Login)
	r.POST("/verify-otp", h.VerifyOTP)
	r.POST("/users/forceLogout", h.ForceLogout)
	r.POST("/users/google-login", h.FederatedLogin(domain.ProviderGoogle))
	r.POST("/users/facebook-login", h.FederatedLogin(domain.ProviderFacebook))
}

// Login godoc
// @Summary Password login
// @Description Checks the password and mails a one-time code. With codes disabled the session is admitted directly.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request payload"
// @Success 200 {object} OTPSentResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/users/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "All fields are required"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   deviceFrom(c),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrorCases, http.StatusInternalServerError, "login failed")
		return
	}

	if result.Outcome != nil {
		respondWithOutcome(c, *result.Outcome, true)
		return
	}
	c.JSON(http.StatusOK, OTPSentResponse{OTPSent: result.OTPSent, Email: result.Email})
}

// VerifyOTP godoc
// @Summary Verify login code
// @Description Completes a password login with the emailed code.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Email and code"
// @Success 200 {object} LoginResponse
// @Success 200 {object} ForceLogoutPromptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.OTP == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Email and OTP are required"))
		return
	}

	outcome, err := h.auth.VerifyOTP(c.Request.Context(), usecase.VerifyOTPInput{
		Email:  req.Email,
		Code:   string(req.OTP),
		Device: deviceFrom(c),
	})
	if err != nil {
		RespondWithMappedError(c, err, verifyOTPErrorCases, http.StatusInternalServerError, "otp verification failed")
		return
	}
	respondWithOutcome(c, outcome, true)
}

// ForceLogout godoc
// @Summary Confirm force logout
// @Description Drops every other session of the account and attaches the pending token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ForceLogoutRequest true "Pending token and email"
// @Success 200 {object} ForceLogoutResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/users/forceLogout [post]
func (h *AuthHandler) ForceLogout(c *gin.Context) {
	var req ForceLogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Token) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Email and token are required"))
		return
	}

	outcome, err := h.auth.ForceLogout(c.Request.Context(), usecase.ForceLogoutInput{
		Email:  req.Email,
		Token:  req.Token,
		Device: deviceFrom(c),
	})
	if err != nil {
		RespondWithMappedError(c, err, forceLogoutErrorCases, http.StatusInternalServerError, "force logout failed")
		return
	}

	c.JSON(http.StatusOK, ForceLogoutResponse{
		Message: "Previous session terminated. Logged in successfully.",
		Token:   outcome.Token,
		User:    newUserResponse(outcome.User),
	})
}

// FederatedLogin returns the handler for one identity provider. The payload
// is trusted as already verified by the provider's client SDK.
func (h *AuthHandler) FederatedLogin(provider domain.Provider) gin.HandlerFunc {
	invalidData := "Invalid Google data"
	if provider == domain.ProviderFacebook {
		invalidData = "Invalid Facebook data"
	}
	errorCases := federatedErrorCases(provider)

	return func(c *gin.Context) {
		var req FederatedLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UID) == "" || strings.TrimSpace(req.Email) == "" {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, invalidData))
			return
		}

		outcome, err := h.auth.FederatedLogin(c.Request.Context(), domain.FederatedIdentity{
			Provider:    provider,
			UID:         req.UID,
			Email:       req.Email,
			DisplayName: req.Name,
			PhotoURL:    req.PhotoURL,
		}, deviceFrom(c))
		if err != nil {
			RespondWithMappedError(c, err, errorCases, http.StatusInternalServerError, "login failed")
			return
		}
		respondWithOutcome(c, outcome, false)
	}
}

func respondWithOutcome(c *gin.Context, outcome domain.LoginOutcome, withMethod bool) {
	if !outcome.Admitted() {
		c.JSON(http.StatusOK, ForceLogoutPromptResponse{ForceLogout: true, Token: outcome.Token})
		return
	}

	resp := LoginResponse{
		Token: outcome.Token,
		User:  newUserResponse(outcome.User),
	}
	if withMethod {
		resp.LastLoginMethod = displayLoginMethod(outcome.User.LastLoginMethod)
	}
	c.JSON(http.StatusOK, resp)
}
