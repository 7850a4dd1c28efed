package middleware

import (
	"context"
	"errors"
	"time"

	"mx/diagnostics"
	"mx/dispatch"
	"mx/envelope"

	"go.uber.org/zap"
)

// Retry re-invokes the wrapped handler, with exponential backoff, when
// it returns context.DeadlineExceeded — the one error this layer treats
// as transient. Any other error is returned immediately, unretried.
func Retry(maxRetries int, baseDelay time.Duration, sink *diagnostics.Sink) Middleware {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
			resp, err := next(ctx, req)
			for attempt := 0; attempt < maxRetries; attempt++ {
				if err == nil {
					return resp, nil
				}
				if !errors.Is(err, context.DeadlineExceeded) {
					return resp, err
				}
				sink.Emit(diagnostics.HandlerError, "retrying request",
					zap.Int("attempt", attempt+1), zap.String("service", req.Service), zap.String("method", req.Method))
				time.Sleep(baseDelay * time.Duration(1<<attempt))
				resp, err = next(ctx, req)
			}
			return resp, err
		}
	}
}
