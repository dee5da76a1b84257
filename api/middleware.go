package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/subledger/auth"
)

// BearerAuth verifies the request's bearer token and attaches the verified
// principal to the request context. A nil verifier lets every request
// through unchanged.
func BearerAuth(v *auth.JWTVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}
		p, err := v.FromRequest(c.Request)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
