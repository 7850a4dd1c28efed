package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"mx/dispatch"
	"mx/diagnostics"
	"mx/envelope"
	"mx/exchange"
	"mx/identity"
	"mx/queue"
	"mx/rpcerrors"
)

// QueueLookup resolves a subscriber's pending-request queue from its
// declared identity. It is the host's collaborator — the core only
// depends on the interface.
type QueueLookup func(remote identity.Remote) (queue.Queue, error)

// Options configures the parts of ActAsServer that aren't dictated by
// the protocol itself: where diagnostics go and how long to block on an
// empty subscriber queue before ending the subscriber session with the
// null sentinel.
type Options struct {
	Sink            *diagnostics.Sink
	PollWaitTimeout time.Duration
}

func (o Options) sink() *diagnostics.Sink {
	return o.Sink
}

func (o Options) pollWaitTimeout() time.Duration {
	if o.PollWaitTimeout > 0 {
		return o.PollWaitTimeout
	}
	return 30 * time.Second
}

// ActAsServer reads the remote's declared identity, identifies this side
// as a server, and forks into the client-serving or subscriber-serving
// loop accordingly. Any other declared identity is a protocol error.
func ActAsServer(ctx context.Context, stream *exchange.Stream, dispatcher dispatch.Dispatcher, lookup QueueLookup, opts Options) error {
	remote, _, err := stream.ReadRemoteIdentity()
	if err != nil {
		return err
	}
	if err := stream.IdentifyAsServer(); err != nil {
		return err
	}

	switch remote.Kind {
	case identity.KindClient:
		return clientServingLoop(ctx, stream, dispatcher, opts)
	case identity.KindSubscriber:
		q, err := lookup(remote)
		if err != nil {
			return err
		}
		return subscriberServingLoop(ctx, stream, q, opts)
	default:
		return rpcerrors.NewProtocolError(
			fmt.Sprintf("%s or %s", identity.KindClient, identity.KindSubscriber),
			remote.Kind.String(),
		)
	}
}

// clientServingLoop repeats expect-HELLO / send-PROCEED / receive /
// dispatch / send-response until the transport fails or the peer
// disconnects. A peer disconnecting while we await HELLO is the
// ordinary way this loop ends — the server has no other signal for
// "client is done" — so end-of-stream there is treated as a clean exit,
// not an error.
func clientServingLoop(ctx context.Context, stream *exchange.Stream, dispatcher dispatch.Dispatcher, opts Options) error {
	for {
		if err := stream.ExpectHello(); err != nil {
			if errors.Is(err, io.EOF) {
				opts.sink().Emit(diagnostics.ConnectionClosed, "client connection closed awaiting HELLO")
				return nil
			}
			return err
		}
		if err := stream.SendProceed(); err != nil {
			return err
		}

		env, err := stream.Receive()
		if err != nil {
			return err
		}
		if env == nil || env.Kind != envelope.KindRequest {
			return rpcerrors.NewProtocolDetail("expected a request envelope from the client")
		}

		resp := invokeAndWrap(ctx, dispatcher, env.Request)
		if err := stream.Send(envelope.NewResponse(resp)); err != nil {
			return err
		}
	}
}

// subscriberServingLoop drains q one request at a time: dequeue, send,
// and — unless the null sentinel ended the session — await the
// subscriber's response and apply it to the queue.
//
// If sending a dequeued request or receiving its response fails, the
// queue is still told about it (via a synthesized transport-failure
// response keyed to the dispatched request's correlation id) before the
// loop unwinds, so nothing is left waiting on a reply that will never
// arrive.
func subscriberServingLoop(ctx context.Context, stream *exchange.Stream, q queue.Queue, opts Options) error {
	for {
		next, err := q.Dequeue(opts.pollWaitTimeout())
		if err != nil {
			return err
		}

		var out *envelope.Envelope
		if next != nil {
			out = envelope.NewRequest(next)
		}
		if err := stream.Send(out); err != nil {
			if next != nil {
				_ = q.ApplyResponse(&envelope.ResponseMessage{
					CorrelationID: next.CorrelationID,
					Err:           &envelope.ErrorDescriptor{Kind: "transport_failure", Message: err.Error()},
				})
			}
			return err
		}
		if next == nil {
			opts.sink().Emit(diagnostics.SubscriberDrained, "queue drained, ending subscriber session")
			return nil
		}

		env, err := stream.Receive()
		if err != nil {
			_ = q.ApplyResponse(&envelope.ResponseMessage{
				CorrelationID: next.CorrelationID,
				Err:           &envelope.ErrorDescriptor{Kind: "transport_failure", Message: err.Error()},
			})
			return err
		}
		if env == nil || env.Kind != envelope.KindResponse {
			protoErr := rpcerrors.NewProtocolDetail("expected a response envelope from the subscriber")
			_ = q.ApplyResponse(&envelope.ResponseMessage{
				CorrelationID: next.CorrelationID,
				Err:           &envelope.ErrorDescriptor{Kind: "protocol_error", Message: protoErr.Error()},
			})
			return protoErr
		}

		if err := q.ApplyResponse(env.Response); err != nil {
			return err
		}
	}
}
