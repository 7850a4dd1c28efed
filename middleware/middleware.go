// Package middleware implements the onion-model middleware chain around
// a dispatch.HandlerFunc: cross-cutting concerns (logging, timeout, rate
// limiting, retry) wrap the business handler without the handler itself
// knowing about them.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
package middleware

import "mx/dispatch"

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next dispatch.HandlerFunc) dispatch.HandlerFunc

// Chain composes middlewares so the first in the list is the outermost
// layer — executed first on the way in, last on the way out.
func Chain(middlewares ...Middleware) Middleware {
	return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
