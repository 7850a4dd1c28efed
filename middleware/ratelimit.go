package middleware

import (
	"context"
	"fmt"

	"mx/dispatch"
	"mx/envelope"

	"golang.org/x/time/rate"
)

// RateLimit throttles dispatched requests with a token-bucket limiter:
// tokens refill at r per second up to burst capacity, and a request
// finding the bucket empty is rejected rather than queued, so a caller
// sees backpressure immediately instead of unbounded latency.
//
// The limiter is created once, in the outer closure — creating it per
// request would hand every request a fresh full bucket and defeat the
// whole point.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		return func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
			if !limiter.Allow() {
				return nil, fmt.Errorf("middleware: rate limit exceeded for %s.%s", req.Service, req.Method)
			}
			return next(ctx, req)
		}
	}
}
