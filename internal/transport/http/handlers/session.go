package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/transport/http/middleware"
	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

var sessionErrorCases = []ErrorCase{
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "User not found"},
	{Err: usecase.ErrSessionNotFound, Status: http.StatusUnauthorized, Message: "Invalid or expired token"},
}

// SessionHandler exposes endpoints for session management.
type SessionHandler struct {
	auth LoginService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(auth LoginService) *SessionHandler {
	return &SessionHandler{auth: auth}
}

// RegisterRoutes binds the session routes. requireSession guards every route
// except the logout notice, which the client sends after its token is gone.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup, requireSession gin.HandlerFunc) {
	r.GET("/users/sessions", requireSession, h.ListSessions)
	r.DELETE("/users/logout", requireSession, h.Logout)
	r.DELETE("/users/logout-all", requireSession, h.LogoutAll)
	r.POST("/update-login-method", requireSession, h.UpdateLoginMethod)
	r.POST("/send-logout-email", h.SendLogoutEmail)
}

// ListSessions godoc
// @Summary List active sessions
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/users/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	sessions, err := h.auth.Sessions(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	c.JSON(http.StatusOK, newSessionResponses(sessions, middleware.GetSessionToken(c)))
}

// Logout godoc
// @Summary Log out the current session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/users/logout [delete]
func (h *SessionHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), userID, middleware.GetSessionToken(c)); err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "logout failed")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// LogoutAll godoc
// @Summary Log out every device
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} LogoutAllResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/auth/users/logout-all [delete]
func (h *SessionHandler) LogoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	revoked, err := h.auth.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "logout failed")
		return
	}
	c.JSON(http.StatusOK, LogoutAllResponse{Message: "Logged out from all devices", Revoked: revoked})
}

// UpdateLoginMethod godoc
// @Summary Record the last login method
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateLoginMethodRequest true "Login method"
// @Success 200 {object} UpdateLoginMethodResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/auth/update-login-method [post]
func (h *SessionHandler) UpdateLoginMethod(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "Unauthorized"))
		return
	}

	var req UpdateLoginMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.LoginMethod) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "loginMethod is required"))
		return
	}

	method, err := h.auth.UpdateLoginMethod(c.Request.Context(), userID, req.LoginMethod)
	if err != nil {
		if _, ok := asValidation(err); ok {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Invalid loginMethod"))
			return
		}
		RespondWithMappedError(c, err, sessionErrorCases, http.StatusInternalServerError, "failed to update login method")
		return
	}

	c.JSON(http.StatusOK, UpdateLoginMethodResponse{
		Success:         true,
		Message:         "Last login method updated successfully",
		LastLoginMethod: displayLoginMethod(method),
	})
}

// SendLogoutEmail godoc
// @Summary Mail a logout confirmation
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body SendLogoutEmailRequest true "Recipient"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} SuccessResponse
// @Router /api/auth/send-logout-email [post]
func (h *SessionHandler) SendLogoutEmail(c *gin.Context) {
	var req SendLogoutEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "Email is required"))
		return
	}

	if err := h.auth.SendLogoutEmail(c.Request.Context(), req.Email, req.Name); err != nil {
		if validation, ok := asValidation(err); ok {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Message))
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, SuccessResponse{Success: false, Message: "Failed to send email"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Logout email sent"})
}
