package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware attaches a request-scoped logger carrying the request id,
// so controllers and services log correlatable lines without threading the
// id themselves.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logger
		if reqID := c.GetString("request_id"); reqID != "" {
			l = l.With("request_id", reqID)
		}
		c.Set("logger", l)
		c.Next()
	}
}
