package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	maxRequestIDLength = 64
)

// RequestID injects a correlation identifier into the context and headers.
// Client supplied ids are echoed only when they are short and header-safe; anything else is replaced.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if !acceptableRequestID(reqID) {
			reqID = uuid.NewString()
		}

		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set(requestIDHeader, reqID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
