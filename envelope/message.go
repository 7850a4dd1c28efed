// Package envelope defines the message data model exchanged between
// endpoints: requests, responses, the discriminated envelope that wraps
// exactly one of them, and the out-of-band attachment descriptors they
// may reference.
package envelope

import (
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrorDescriptor describes a handler failure returned in place of a
// result. Kind names the taxonomy category (see package rpcerrors) so a
// peer can distinguish a business error from a transport-ish failure
// that leaked into the response.
type ErrorDescriptor struct {
	Kind    string
	Message string
}

// RequestMessage is an RPC invocation: service, method, arguments, and a
// correlation id unique within the connection. It may reference zero or
// more attachments by id.
type RequestMessage struct {
	CorrelationID string
	Service       string
	Method        string
	Arguments     bson.Raw
	Attachments   []*DataStream
}

// ResponseMessage answers the request with the matching CorrelationID,
// carrying either Result or Err (never neither, never both). It may
// reference zero or more attachments by id.
type ResponseMessage struct {
	CorrelationID string
	Result        bson.Raw
	Err           *ErrorDescriptor
	Attachments   []*DataStream
}

// wireAttachmentRef is the on-the-wire shape of an attachment reference:
// just enough for the receiver to know an id and length exist before the
// attachment block itself arrives.
type wireAttachmentRef struct {
	ID     string `bson:"id"`
	Length int64  `bson:"length"`
}

func refsFromStreams(streams []*DataStream) []wireAttachmentRef {
	if len(streams) == 0 {
		return nil
	}
	refs := make([]wireAttachmentRef, len(streams))
	for i, s := range streams {
		refs[i] = wireAttachmentRef{ID: s.ID.String(), Length: s.Length}
	}
	return refs
}

func streamsFromRefs(refs []wireAttachmentRef) ([]*DataStream, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	streams := make([]*DataStream, len(refs))
	for i, r := range refs {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, err
		}
		streams[i] = newReceiverStream(id, r.Length)
	}
	return streams, nil
}

type wireRequest struct {
	CorrelationID string              `bson:"correlationId"`
	Service       string              `bson:"service"`
	Method        string              `bson:"method"`
	Arguments     bson.Raw            `bson:"arguments"`
	Attachments   []wireAttachmentRef `bson:"attachments,omitempty"`
}

// MarshalBSON implements bson.Marshaler, projecting the sender-side
// Attachments list down to their wire references — the bytes themselves
// travel out-of-band after the envelope.
func (r *RequestMessage) MarshalBSON() ([]byte, error) {
	return bson.Marshal(wireRequest{
		CorrelationID: r.CorrelationID,
		Service:       r.Service,
		Method:        r.Method,
		Arguments:     r.Arguments,
		Attachments:   refsFromStreams(r.Attachments),
	})
}

// UnmarshalBSON implements bson.Unmarshaler, synthesizing receiver-side
// DataStream placeholders for every attachment reference found.
func (r *RequestMessage) UnmarshalBSON(data []byte) error {
	var w wireRequest
	if err := bson.Unmarshal(data, &w); err != nil {
		return err
	}
	streams, err := streamsFromRefs(w.Attachments)
	if err != nil {
		return err
	}
	r.CorrelationID = w.CorrelationID
	r.Service = w.Service
	r.Method = w.Method
	r.Arguments = w.Arguments
	r.Attachments = streams
	return nil
}

type wireResponse struct {
	CorrelationID string              `bson:"correlationId"`
	Result        bson.Raw            `bson:"result,omitempty"`
	ErrKind       string              `bson:"errorKind,omitempty"`
	ErrMessage    string              `bson:"errorMessage,omitempty"`
	Attachments   []wireAttachmentRef `bson:"attachments,omitempty"`
}

func (r *ResponseMessage) MarshalBSON() ([]byte, error) {
	w := wireResponse{
		CorrelationID: r.CorrelationID,
		Result:        r.Result,
		Attachments:   refsFromStreams(r.Attachments),
	}
	if r.Err != nil {
		w.ErrKind = r.Err.Kind
		w.ErrMessage = r.Err.Message
	}
	return bson.Marshal(w)
}

func (r *ResponseMessage) UnmarshalBSON(data []byte) error {
	var w wireResponse
	if err := bson.Unmarshal(data, &w); err != nil {
		return err
	}
	streams, err := streamsFromRefs(w.Attachments)
	if err != nil {
		return err
	}
	r.CorrelationID = w.CorrelationID
	r.Result = w.Result
	r.Attachments = streams
	if w.ErrKind != "" || w.ErrMessage != "" {
		r.Err = &ErrorDescriptor{Kind: w.ErrKind, Message: w.ErrMessage}
	}
	return nil
}
