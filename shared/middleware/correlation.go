package middleware

import (
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CorrelationMiddleware binds the request's correlation identifier to the
// request context and echoes it back on the response.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := correlation.Resolve(c.GetHeader(correlation.HeaderName))
		c.Request = c.Request.WithContext(correlation.WithID(c.Request.Context(), id))
		c.Header(correlation.HeaderName, id)
		c.Next()
	}
}

// LoggingMiddleware writes one access log line per request. It must run after
// CorrelationMiddleware for the line to carry the identifier.
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log := correlation.Logger(c.Request.Context(), logger)
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
