package envelope

import (
	"bytes"
	"io"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	args, err := bson.Marshal(struct{ X int }{X: 7})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}

	req := &RequestMessage{
		CorrelationID: "corr-1",
		Service:       "Echo",
		Method:        "Say",
		Arguments:     args,
	}
	env := NewRequest(req)

	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != KindRequest {
		t.Fatalf("Kind = %v, want %v", got.Kind, KindRequest)
	}
	if got.Request.CorrelationID != "corr-1" || got.Request.Service != "Echo" || got.Request.Method != "Say" {
		t.Fatalf("unexpected request: %+v", got.Request)
	}
}

func TestEncodeDecodeNullSentinel(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode(nil): %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil envelope sentinel, got %+v", got)
	}
}

func TestAttachmentsVisitorRequest(t *testing.T) {
	ds := NewDataStream(3, func(w io.Writer) error {
		_, err := w.Write([]byte("abc"))
		return err
	})
	env := NewRequest(&RequestMessage{CorrelationID: "c", Attachments: []*DataStream{ds}})

	got := env.Attachments()
	if len(got) != 1 || got[0] != ds {
		t.Fatalf("Attachments() = %v, want [%v]", got, ds)
	}
}

func TestAttachmentsVisitorNilEnvelope(t *testing.T) {
	var env *Envelope
	if got := env.Attachments(); got != nil {
		t.Fatalf("Attachments() on nil envelope = %v, want nil", got)
	}
}

func TestRequestMessageAttachmentRefRoundTrip(t *testing.T) {
	ds := NewDataStream(11, func(w io.Writer) error {
		_, err := w.Write([]byte("hello world"))
		return err
	})
	req := &RequestMessage{CorrelationID: "c2", Service: "S", Method: "M", Attachments: []*DataStream{ds}}

	raw, err := bson.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	var decoded RequestMessage
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if len(decoded.Attachments) != 1 {
		t.Fatalf("decoded.Attachments len = %d, want 1", len(decoded.Attachments))
	}
	if decoded.Attachments[0].ID != ds.ID {
		t.Fatalf("decoded attachment id = %v, want %v", decoded.Attachments[0].ID, ds.ID)
	}
	if decoded.Attachments[0].Length != 11 {
		t.Fatalf("decoded attachment length = %d, want 11", decoded.Attachments[0].Length)
	}
	if decoded.Attachments[0].IsSenderSide() {
		t.Fatalf("decoded attachment should be receiver-side")
	}
}

func TestCaptureRejectsDuplicateID(t *testing.T) {
	ds := NewDataStream(1, func(w io.Writer) error { return nil })
	dup := NewDataStreamWithID(ds.ID, 1, func(w io.Writer) error { return nil })

	c := NewCapture()
	if err := c.Register(ds); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := c.Register(dup); err == nil {
		t.Fatalf("expected error registering duplicate attachment id")
	}
}

func TestDataStreamReadIsSingleUse(t *testing.T) {
	id := NewDataStream(1, nil).ID
	ds := newReceiverStream(id, 3)
	ds.Bind(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("xyz"))), nil
	})

	rc, err := ds.Read()
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	rc.Close()

	if _, err := ds.Read(); err == nil {
		t.Fatalf("expected second Read to fail")
	}
}

func TestDataStreamBindTwicePanics(t *testing.T) {
	ds := newReceiverStream(NewDataStream(1, nil).ID, 1)
	ds.Bind(func() (io.ReadCloser, error) { return nil, nil })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on second Bind")
		}
	}()
	ds.Bind(func() (io.ReadCloser, error) { return nil, nil })
}
