package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/transport/http/middleware"
	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

const passwordMismatchMessage = "password and confirm password does not match"

var (
	forgetPasswordErrorCases = []ErrorCase{
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "Invalid Email"},
	}

	resetPasswordErrorCases = []ErrorCase{
		{Err: usecase.ErrPasswordMismatch, Status: http.StatusBadRequest, Message: passwordMismatchMessage},
		{Err: usecase.ErrLinkExpired, Status: http.StatusBadRequest, Message: "Link has been Expired"},
		{Err: usecase.ErrUserNotFound, Status: http.StatusBadRequest, Message: "Link has been Expired"},
	}

	changePasswordErrorCases = []ErrorCase{
		{Err: usecase.ErrPasswordMismatch, Status: http.StatusBadRequest, Message: passwordMismatchMessage},
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusBadRequest, Message: "Old password is incorrect"},
		{Err: usecase.ErrPasswordNotSet, Status: http.StatusBadRequest, Message: "Password login is not enabled for this account"},
		{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "User not found"},
	}
)

// PasswordHandler exposes password management endpoints.
type PasswordHandler struct {
	passwords CredentialService
}

// NewPasswordHandler wires password management endpoints.
func NewPasswordHandler(passwords CredentialService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// RegisterRoutes binds the password routes. requireSession guards the change endpoint.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, requireSession gin.HandlerFunc) {
	r.POST("/forget-password", h.ForgetPassword)
	r.POST("/forget-password/:id/:token", h.ResetPassword)
	r.POST("/change-password", requireSession, h.ChangePassword)
}

// ForgetPassword godoc
// @Summary Request a password reset link
// @Tags Password
// @Accept json
// @Produce json
// @Param request body ForgetPasswordRequest true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/forget-password [post]
func (h *PasswordHandler) ForgetPassword(c *gin.Context) {
	var req ForgetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	if err := h.passwords.ForgetPassword(c.Request.Context(), req.Email); err != nil {
		RespondWithMappedError(c, err, forgetPasswordErrorCases, http.StatusInternalServerError, "password reset request failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Email Sent"})
}

// ResetPassword godoc
// @Summary Complete a password reset
// @Description Sets a new password from a reset link and clears the lockout. Each link works once.
// @Tags Password
// @Accept json
// @Produce json
// @Param id path string true "User id"
// @Param token path string true "Reset token"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/forget-password/{id}/{token} [post]
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.NewPassword == "" || req.ConfirmPassword == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "All fields are required"))
		return
	}

	err := h.passwords.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		UserID:          c.Param("id"),
		Token:           c.Param("token"),
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		RespondWithMappedError(c, err, resetPasswordErrorCases, http.StatusInternalServerError, "password reset failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password Changed Successfully"})
}

// ChangePassword godoc
// @Summary Change password
// @Tags Password
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/change-password [post]
func (h *PasswordHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "All fields are required"))
		return
	}

	err := h.passwords.ChangePassword(c.Request.Context(), userID, usecase.ChangePasswordInput{
		OldPassword:     req.OldPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		RespondWithMappedError(c, err, changePasswordErrorCases, http.StatusInternalServerError, "password change failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "password Changed Successfully"})
}
