// Package protocol sequences the exchange stream's primitives into
// complete exchanges from the client, subscriber, and server
// perspectives.
package protocol

import (
	"context"

	"mx/dispatch"
	"mx/envelope"
	"mx/rpcerrors"
)

// invokeAndWrap calls the dispatcher on req. On any raised error it
// produces a ResponseMessage carrying req's correlation id and the
// innermost cause, so the peer sees the original fault rather than a
// wrapper chain. A handler failure is never fatal to the connection.
func invokeAndWrap(ctx context.Context, dispatcher dispatch.Dispatcher, req *envelope.RequestMessage) *envelope.ResponseMessage {
	resp, err := dispatcher.Dispatch(ctx, req)
	if err != nil {
		cause := rpcerrors.Innermost(err)
		return &envelope.ResponseMessage{
			CorrelationID: req.CorrelationID,
			Err:           &envelope.ErrorDescriptor{Kind: "handler_error", Message: cause.Error()},
		}
	}
	if resp.CorrelationID == "" {
		resp.CorrelationID = req.CorrelationID
	}
	return resp
}
