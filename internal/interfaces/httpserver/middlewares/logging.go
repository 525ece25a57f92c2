package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"bastion-server/internal/infrastructure/observability"
)

// LoggingMiddleware logs HTTP requests with OpenTelemetry trace context. User ids and query strings
// pass through sanitizer first.
func LoggingMiddleware(logger zerolog.Logger, sanitizer *observability.Sanitizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		logEvent := logger.Info()
		if statusCode >= 500 {
			logEvent = logger.Error()
		} else if statusCode >= 400 {
			logEvent = logger.Warn()
		}

		span := trace.SpanFromContext(c.Request.Context())
		if span.SpanContext().IsValid() {
			logEvent = logEvent.
				Str("trace_id", span.SpanContext().TraceID().String()).
				Str("span_id", span.SpanContext().SpanID().String())
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			logEvent = logEvent.Str("request_id", requestID)
		}
		if userID := c.GetString("user_id"); userID != "" {
			logEvent = logEvent.Str("user_id", sanitizer.UserID(userID))
		}

		logEvent.
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", sanitizer.Text(raw)).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg(c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}
