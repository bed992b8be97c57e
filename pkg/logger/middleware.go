package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware returns a Gin middleware function that logs requests
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		reqLogger := logger.WithRequestID(requestID)
		c.Set("logger", reqLogger)

		start := time.Now()

		c.Next()

		// identity is only known once the auth middleware ran
		if identity := c.GetString("identity"); identity != "" {
			reqLogger = reqLogger.WithIdentity(identity)
		}
		reqLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// FromContext returns the request-scoped logger set by Middleware, or the global one
func FromContext(c *gin.Context) *Logger {
	if l, ok := c.Get("logger"); ok {
		if log, ok := l.(*Logger); ok {
			return log
		}
	}
	return GetGlobal()
}
