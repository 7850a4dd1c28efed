package envelope

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Kind is the closed, explicit discriminator for the payload a
// MessageEnvelope carries. The wire format embeds this tag rather than
// an open type name, so deserialization can never be tricked into
// instantiating an arbitrary type.
type Kind string

const (
	KindRequest  Kind = "Request"
	KindResponse Kind = "Response"
	// kindNull is the on-the-wire tag for the sentinel "no more work"
	// envelope. It is never exposed outside this package: Envelope is
	// nil instead.
	kindNull Kind = ""
)

// Envelope is the outer structured-document wrapper carrying exactly one
// message plus its type tag. A nil *Envelope is a legal decoded value:
// it represents the graceful end-of-exchange sentinel.
type Envelope struct {
	Kind     Kind
	Request  *RequestMessage
	Response *ResponseMessage
}

// NewRequest wraps a request in an envelope.
func NewRequest(r *RequestMessage) *Envelope {
	return &Envelope{Kind: KindRequest, Request: r}
}

// NewResponse wraps a response in an envelope.
func NewResponse(r *ResponseMessage) *Envelope {
	return &Envelope{Kind: KindResponse, Response: r}
}

// Attachments is the explicit visitor that replaces an ambient capture:
// it returns exactly the attachment descriptors this envelope's payload
// references, without any serializer hook mutating shared state as it
// walks the object graph.
func (e *Envelope) Attachments() []*DataStream {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case KindRequest:
		return e.Request.Attachments
	case KindResponse:
		return e.Response.Attachments
	default:
		return nil
	}
}

type wireEnvelope struct {
	Type     string           `bson:"_t"`
	Request  *RequestMessage  `bson:"request,omitempty"`
	Response *ResponseMessage `bson:"response,omitempty"`
}

// Encode serializes e (or the null sentinel, if e is nil) to a BSON
// document. The DEFLATE wrapping is the frame codec's responsibility;
// this function only owns the structured-document shape.
func Encode(e *Envelope) ([]byte, error) {
	if e == nil {
		return bson.Marshal(wireEnvelope{Type: string(kindNull)})
	}
	w := wireEnvelope{Type: string(e.Kind)}
	switch e.Kind {
	case KindRequest:
		w.Request = e.Request
	case KindResponse:
		w.Response = e.Response
	default:
		return nil, fmt.Errorf("envelope: unknown payload kind %q", e.Kind)
	}
	return bson.Marshal(w)
}

// Decode deserializes a BSON document produced by Encode. It returns a
// nil *Envelope, nil error for the null sentinel.
func Decode(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := bson.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch Kind(w.Type) {
	case kindNull:
		return nil, nil
	case KindRequest:
		if w.Request == nil {
			return nil, fmt.Errorf("envelope: Request tag with no request body")
		}
		return &Envelope{Kind: KindRequest, Request: w.Request}, nil
	case KindResponse:
		if w.Response == nil {
			return nil, fmt.Errorf("envelope: Response tag with no response body")
		}
		return &Envelope{Kind: KindResponse, Response: w.Response}, nil
	default:
		return nil, fmt.Errorf("envelope: unrecognized payload kind %q", w.Type)
	}
}
