package protocol

import (
	"context"
	"net"

	"golang.org/x/time/rate"

	"mx/diagnostics"
	"mx/dispatch"
	"mx/envelope"
	"mx/exchange"
	"mx/rpcerrors"
	"mx/tempstore"
)

// ActAsSubscriber polls a server for work over stream, invoking
// dispatcher for each request until the server sends the null sentinel.
// It returns the number of non-null requests processed.
func ActAsSubscriber(ctx context.Context, stream *exchange.Stream, subscriptionURI string, dispatcher dispatch.Dispatcher) (int, error) {
	if err := stream.IdentifyAsSubscriber(subscriptionURI); err != nil {
		return 0, rpcerrors.WrapConnectionInit(err)
	}

	processed := 0
	for {
		env, err := stream.Receive()
		if err != nil {
			return processed, err
		}
		if env == nil {
			return processed, nil
		}
		if env.Kind != envelope.KindRequest {
			return processed, rpcerrors.NewProtocolDetail("expected a request envelope while polling")
		}

		resp := invokeAndWrap(ctx, dispatcher, env.Request)
		if err := stream.Send(envelope.NewResponse(resp)); err != nil {
			return processed, err
		}
		processed++
	}
}

// RunSubscriberLoop dials, identifies, and runs ActAsSubscriber
// repeatedly until ctx is cancelled, reconnecting after every session
// ends (the server drained its queue, or the connection dropped). A
// rate.Limiter paces reconnect attempts instead of a fixed sleep, so a
// server that is briefly unreachable doesn't get hammered with redial
// attempts the instant it recovers: the limiter's rate should be set
// from RetryListeningSleepInterval (one permit per interval, burst 1).
func RunSubscriberLoop(ctx context.Context, dial func() (net.Conn, error), store *tempstore.Store, subscriptionURI string, dispatcher dispatch.Dispatcher, limiter *rate.Limiter, sink *diagnostics.Sink) error {
	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		conn, err := dial()
		if err != nil {
			sink.Emit(diagnostics.ConnectionClosed, "subscriber dial failed: "+err.Error())
			continue
		}

		stream := exchange.New(conn, store)
		_, err = ActAsSubscriber(ctx, stream, subscriptionURI, dispatcher)
		stream.Close()
		if err != nil {
			sink.Emit(diagnostics.ConnectionClosed, "subscriber session ended: "+err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
