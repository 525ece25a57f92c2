package httpclients

import (
	"context"
	"time"

	"resty.dev/v3"

	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/utils/platformerrors"
)

type HTTPClientStartsAt struct{}

// NewClient returns a resty client that logs every exchange at debug level. Response bodies are
// only logged for parsed results so streamed bodies stay untouched.
func NewClient(clientName string, timeout time.Duration) *resty.Client {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		ctx := context.WithValue(r.Context(), HTTPClientStartsAt{}, time.Now())
		r.SetContext(ctx)
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.GetLogger()
		ctx := r.Request.Context()
		startTime, _ := ctx.Value(HTTPClientStartsAt{}).(time.Time)
		requestID, _ := ctx.Value(platformerrors.RequestIDKey{}).(string)

		event := log.Debug().
			Str("request_id", requestID).
			Str("client", clientName).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime))
		if raw := r.Request.RawRequest; raw != nil {
			event = event.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		event.Msg("HTTP client request")
		return nil
	})
	return client
}
