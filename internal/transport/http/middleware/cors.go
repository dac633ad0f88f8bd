package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
	}, ",")
	corsHeaders = strings.Join([]string{
		"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader, TraceIDHeader,
	}, ",")
	corsExposed = strings.Join([]string{requestIDHeader, TraceIDHeader}, ",")
)

// CORS admits the browser front end. Sessions travel as bearer tokens, so credentials are
// allowed only for explicitly listed origins and never together with the "*" wildcard.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false

	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			origins[origin] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Writer.Header().Add("Vary", "Origin")

		if _, ok := origins[origin]; ok {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Expose-Headers", corsExposed)
		} else if wildcard {
			c.Header("Access-Control-Allow-Origin", "*")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", "600")

			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
