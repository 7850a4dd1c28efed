// Package diagnostics implements the append-only diagnostics sink
// collaborator: (event_kind, message) accepted from every connection's
// goroutine. It wraps zap rather than log.Printf — zap is already
// pulled into the dependency graph by go.etcd.io/etcd/client/v3, and a
// structured, leveled logger fits a server that runs many connection
// goroutines concurrently.
package diagnostics

import (
	"go.uber.org/zap"
)

// EventKind is the closed set of events the exchange protocol reports,
// so a sink can filter or alert on kind without string matching.
type EventKind string

const (
	Handshake         EventKind = "handshake"
	ProtocolError     EventKind = "protocol_error"
	AuthFailure       EventKind = "auth_failure"
	HandlerError      EventKind = "handler_error"
	ConnectionClosed  EventKind = "connection_closed"
	SubscriberDrained EventKind = "subscriber_drained"
	RequestCompleted  EventKind = "request_completed"
)

// Sink is the diagnostics collaborator. It is safe for concurrent use.
type Sink struct {
	log *zap.Logger
}

// New wraps an existing zap.Logger as a Sink.
func New(log *zap.Logger) *Sink {
	return &Sink{log: log}
}

// NewProduction builds a Sink backed by zap's production configuration
// (JSON output, info level and above).
func NewProduction() (*Sink, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(log), nil
}

// Emit records one diagnostics event. fields are attached as structured
// zap fields, not interpolated into the message string.
func (s *Sink) Emit(kind EventKind, message string, fields ...zap.Field) {
	if s == nil || s.log == nil {
		return
	}
	allFields := append([]zap.Field{zap.String("event_kind", string(kind))}, fields...)
	switch kind {
	case ProtocolError, AuthFailure, HandlerError:
		s.log.Warn(message, allFields...)
	default:
		s.log.Info(message, allFields...)
	}
}

// Sync flushes any buffered log entries. Call during shutdown.
func (s *Sink) Sync() error {
	if s == nil || s.log == nil {
		return nil
	}
	return s.log.Sync()
}
