// Package rpcerrors defines the five-category error taxonomy of the
// exchange protocol: protocol violations, connection-initialization
// failures, authentication-like failures, transport failures, and
// handler failures.
//
// Plain wrapped error values are used rather than an external error
// library: the taxonomy only needs errors.Is/errors.As matching against
// a closed set of sentinels, which the standard library already does
// well.
package rpcerrors

import (
	"errors"
	"fmt"
)

// ErrAuthLike marks a peer closing the stream while a client awaits
// PROCEED — in the target deployment this is almost always a TLS trust
// rejection surfacing as a silent close, not a generic protocol error.
var ErrAuthLike = errors.New("rpcerrors: peer closed stream awaiting PROCEED (authentication-like failure)")

// ProtocolError is a wire-format violation: unknown identity token,
// missing subscription URI, an unexpected token where HELLO/PROCEED was
// required, an unknown attachment id, or a truncated attachment.
type ProtocolError struct {
	Expected string
	Observed string
	Detail   string
}

func (e *ProtocolError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("protocol error: expected %q, observed %q", e.Expected, e.Observed)
	}
	return "protocol error: " + e.Detail
}

// NewProtocolError builds a ProtocolError naming the expected and
// observed tokens, per the exchange stream's contract that every
// mismatched read names both.
func NewProtocolError(expected, observed string) error {
	return &ProtocolError{Expected: expected, Observed: observed}
}

// NewProtocolDetail builds a ProtocolError for violations that are not a
// simple token mismatch (unknown attachment id, truncated attachment).
func NewProtocolDetail(detail string) error {
	return &ProtocolError{Detail: detail}
}

// ConnectionInitError wraps any error raised during the client-side
// identify/hello/proceed sequence. Initialization failures are retryable
// on a fresh connection, unlike failures mid-request, so they are kept
// distinguishable from the native error taxonomy of send/receive.
type ConnectionInitError struct {
	Cause error
}

func (e *ConnectionInitError) Error() string {
	return fmt.Sprintf("connection initialization failed: %v", e.Cause)
}

func (e *ConnectionInitError) Unwrap() error { return e.Cause }

// WrapConnectionInit wraps cause as a ConnectionInitError. Returns nil if
// cause is nil.
func WrapConnectionInit(cause error) error {
	if cause == nil {
		return nil
	}
	return &ConnectionInitError{Cause: cause}
}

// HandlerError is an error thrown by the invocation dispatcher. It is
// never fatal to the connection: invoke_and_wrap unpacks it to its
// innermost cause and returns it to the peer as a response payload
// rather than propagating it out of the exchange operation.
type HandlerError struct {
	Cause error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error: %v", e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

// Innermost walks err's Unwrap chain and returns the deepest cause, so
// the peer sees the original fault rather than a wrapper chain.
func Innermost(err error) error {
	for {
		u := errors.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
}

// IsAuthLike reports whether err is (or wraps) ErrAuthLike.
func IsAuthLike(err error) bool {
	return errors.Is(err, ErrAuthLike)
}
