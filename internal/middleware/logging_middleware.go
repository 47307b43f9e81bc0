package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"pkt.systems/pslog"
)

// RequestLogger stores logger on each request context and logs one line per
// request once the handler chain has finished.
func RequestLogger(logger pslog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLogger := logger.With("remote", c.ClientIP())
		c.Request = c.Request.WithContext(pslog.ContextWithLogger(c.Request.Context(), reqLogger))

		c.Next()

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + redactToken(raw)
		}
		if userID := UserID(c); userID != "" {
			reqLogger = reqLogger.With("user_id", userID)
		}
		reqLogger.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		reqLogger.Debug("http request details", "ua", c.Request.UserAgent())
	}
}
