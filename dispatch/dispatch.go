// Package dispatch defines the invocation dispatcher collaborator the
// exchange protocol calls into on every request: (RequestMessage) →
// ResponseMessage, may raise. The core only depends on this interface;
// this package also supplies a couple of default implementations so the
// protocol state machine is runnable and testable without a caller
// bringing their own service container.
package dispatch

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"mx/envelope"
)

// Dispatcher routes a decoded request to a service method and returns
// its response. A Dispatcher may return an error instead of a response;
// invoke_and_wrap (package protocol) is responsible for turning that
// into a HandlerError response rather than ever propagating it out of
// the exchange.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error)
}

// HandlerFunc adapts a plain function to the Dispatcher interface for a
// single service method.
type HandlerFunc func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error)

// Dispatch calls f(ctx, req).
func (f HandlerFunc) Dispatch(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
	return f(ctx, req)
}

// Registry is a Dispatcher that looks up a handler by "Service.Method"
// and is safe for concurrent registration and dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for "service.method".
func (r *Registry) Handle(service, method string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key(service, method)] = fn
}

func (r *Registry) Dispatch(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
	r.mu.RLock()
	fn, ok := r.handlers[key(req.Service, req.Method)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dispatch: no handler registered for %s.%s", req.Service, req.Method)
	}
	return fn(ctx, req)
}

func key(service, method string) string { return service + "." + method }

// methodType is the reflection metadata for one RPC-compatible method.
// A method must have the shape
//
//	func (receiver) Method(ctx context.Context, args *ArgsType) (*ReplyType, error)
type methodType struct {
	method  reflect.Method
	ArgType reflect.Type
}

// Service wraps a user-defined receiver and its RPC-compatible methods,
// dispatching by reflection, decoding arguments out of a
// RequestMessage's BSON Arguments field and re-encoding the reply into
// a ResponseMessage's Result field.
type Service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// NewService builds a Service from a pointer to a struct, scanning its
// exported methods for the RPC-compatible signature above. Methods that
// don't match are silently skipped.
func NewService(rcvr any) (*Service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("dispatch: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("dispatch: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &Service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		mt := m.Type
		if mt.NumIn() != 3 || mt.NumOut() != 2 {
			continue
		}
		if mt.In(1) != ctxType {
			continue
		}
		if mt.In(2).Kind() != reflect.Ptr {
			continue
		}
		if mt.Out(0).Kind() != reflect.Ptr || mt.Out(1) != errType {
			continue
		}
		svc.method[m.Name] = &methodType{method: m, ArgType: mt.In(2).Elem()}
	}
	return svc, nil
}

// Name is the service name a request's Service field must match.
func (s *Service) Name() string { return s.name }

// Register installs svc's methods into r under svc.Name().
func (r *Registry) Register(svc *Service) {
	for name, mt := range svc.method {
		mt := mt
		r.Handle(svc.name, name, func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
			argv := reflect.New(mt.ArgType)
			if len(req.Arguments) > 0 {
				if err := bsonUnmarshal(req.Arguments, argv.Interface()); err != nil {
					return nil, fmt.Errorf("dispatch: decode arguments for %s.%s: %w", svc.name, name, err)
				}
			}
			results := mt.method.Func.Call([]reflect.Value{svc.rcvr, reflect.ValueOf(ctx), argv})
			if errv := results[1]; !errv.IsNil() {
				return nil, errv.Interface().(error)
			}
			resultBytes, err := bsonMarshal(results[0].Interface())
			if err != nil {
				return nil, fmt.Errorf("dispatch: encode result for %s.%s: %w", svc.name, name, err)
			}
			return &envelope.ResponseMessage{
				CorrelationID: req.CorrelationID,
				Result:        resultBytes,
			}, nil
		})
	}
}
