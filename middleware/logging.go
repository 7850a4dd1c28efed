package middleware

import (
	"context"
	"time"

	"mx/diagnostics"
	"mx/dispatch"
	"mx/envelope"

	"go.uber.org/zap"
)

// Logging records the service, method, and duration of every dispatched
// request, and flags any that came back with an error.
func Logging(sink *diagnostics.Sink) Middleware {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			fields := []zap.Field{
				zap.String("service", req.Service),
				zap.String("method", req.Method),
				zap.Duration("duration", duration),
			}
			if err != nil {
				sink.Emit(diagnostics.HandlerError, "request failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			if resp != nil && resp.Err != nil {
				sink.Emit(diagnostics.HandlerError, "request returned an error response",
					append(fields, zap.String("error_kind", resp.Err.Kind), zap.String("error_message", resp.Err.Message))...)
				return resp, err
			}
			sink.Emit(diagnostics.RequestCompleted, "request completed", fields...)
			return resp, err
		}
	}
}
