package middleware

import (
	"context"
	"time"

	"mx/dispatch"
	"mx/envelope"
)

// Timeout enforces a maximum duration for the wrapped handler. The
// handler goroutine is not cancelled when the timeout fires — it
// continues in the background — so a handler that wants true
// cancellation must watch ctx.Done() itself.
func Timeout(d time.Duration) Middleware {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				resp *envelope.ResponseMessage
				err  error
			}
			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, context.DeadlineExceeded
			}
		}
	}
}
