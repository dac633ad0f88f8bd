package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
	"github.com/RASA-RCS/userauth-service/internal/usecase"
)

const (
	// SessionTokenKey is the context key for the bearer token of the current session
	SessionTokenKey = "session_token"
	// UserKey is the context key for the sanitized authenticated user
	UserKey = "user"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{
		Message: message,
		TraceID: GetTraceID(c),
	}
}

// SessionAuthenticator resolves a bearer token to a live session.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, *domain.Session, error)
}

// RequireSession validates the Authorization header against the session list
// of its user. Every successful call refreshes the session's activity.
func RequireSession(auth SessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "Unauthorized"))
			return
		}

		user, _, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			var dependency *usecase.DependencyError
			switch {
			case errors.Is(err, usecase.ErrSessionInactive):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "Auto logged out due to inactivity"))
			case errors.Is(err, usecase.ErrSessionExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "Session expired"))
			case errors.As(err, &dependency):
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "Invalid or expired token"))
			}
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(SessionTokenKey, token)
		c.Set(UserKey, user)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey{}, user.ID))

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = user.ID
		}

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}

// GetSessionToken returns the bearer token of the authenticated request.
func GetSessionToken(c *gin.Context) string {
	return c.GetString(SessionTokenKey)
}

// GetAuthenticatedUser returns the user resolved by RequireSession.
func GetAuthenticatedUser(c *gin.Context) (*domain.User, bool) {
	value, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*domain.User)
	return user, ok && user != nil
}
