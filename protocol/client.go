package protocol

import (
	"fmt"

	"mx/envelope"
	"mx/exchange"
	"mx/rpcerrors"
)

// ActAsClient performs one exchange in the client role. A Stream may be
// reused for many calls: on a fresh connection it identifies itself
// first; on subsequent calls over the same Stream it skips
// identification, per the connection-reuse flag exchange.Stream tracks.
//
// Any failure while identifying, saying HELLO, or awaiting PROCEED is
// wrapped as a connection-initialization failure, since those are
// retryable on a fresh connection. Failures sending the request or
// receiving the response propagate with their native error taxonomy
// unchanged, since a request may have already taken effect server-side.
func ActAsClient(stream *exchange.Stream, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
	if !stream.AlreadyIdentifiedAsClient() {
		if err := stream.IdentifyAsClient(); err != nil {
			return nil, rpcerrors.WrapConnectionInit(err)
		}
	}

	if err := stream.SendHello(); err != nil {
		return nil, rpcerrors.WrapConnectionInit(err)
	}
	if err := stream.ExpectProceed(); err != nil {
		return nil, rpcerrors.WrapConnectionInit(err)
	}

	if err := stream.Send(envelope.NewRequest(req)); err != nil {
		return nil, err
	}

	env, err := stream.Receive()
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("protocol: server sent the null sentinel in reply to a request")
	}
	if env.Kind != envelope.KindResponse {
		return nil, rpcerrors.NewProtocolDetail("expected a response envelope from the server")
	}
	return env.Response, nil
}
