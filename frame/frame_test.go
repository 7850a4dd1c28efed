package frame

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"mx/envelope"
)

// pipeConn adapts one end of a net.Pipe into a loopback io.ReadWriteCloser
// pair usable for a single Codec each.
func pipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestWriteReadLineSkipsEmptyLines(t *testing.T) {
	a, b := pipeConn(t)
	wc := New(a)
	rc := New(b)

	go func() {
		wc.WriteLine("")
		wc.WriteLine("HELLO")
	}()

	line, err := rc.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if line != "HELLO" {
		t.Fatalf("ReadLine = %q, want HELLO", line)
	}
}

func TestWriteReadEnvelopeRoundTrip(t *testing.T) {
	a, b := pipeConn(t)
	wc := New(a)
	rc := New(b)

	req := &envelope.RequestMessage{CorrelationID: "abc", Service: "S", Method: "M"}
	env := envelope.NewRequest(req)

	done := make(chan error, 1)
	go func() {
		_, err := wc.WriteEnvelope(env)
		done <- err
	}()

	got, streams, err := rc.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	if len(streams) != 0 {
		t.Fatalf("expected no attachments, got %d", len(streams))
	}
	if got.Request.CorrelationID != "abc" {
		t.Fatalf("CorrelationID = %q, want abc", got.Request.CorrelationID)
	}
}

func TestWriteReadEnvelopeNullSentinel(t *testing.T) {
	a, b := pipeConn(t)
	wc := New(a)
	rc := New(b)

	done := make(chan error, 1)
	go func() {
		_, err := wc.WriteEnvelope(nil)
		done <- err
	}()

	got, streams, err := rc.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	if got != nil || streams != nil {
		t.Fatalf("expected null sentinel, got env=%v streams=%v", got, streams)
	}
}

func TestAttachmentBlockRoundTrip(t *testing.T) {
	a, b := pipeConn(t)
	wc := New(a)
	rc := New(b)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	ds := envelope.NewDataStream(int64(len(payload)), func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	})

	done := make(chan error, 1)
	go func() {
		done <- wc.WriteAttachment(ds)
	}()

	id, length, err := rc.ReadAttachmentHeader()
	if err != nil {
		t.Fatalf("ReadAttachmentHeader: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteAttachment: %v", err)
	}
	if id != ds.ID {
		t.Fatalf("id = %v, want %v", id, ds.ID)
	}
	if length != int64(len(payload)) {
		t.Fatalf("length = %d, want %d", length, len(payload))
	}

	body, err := io.ReadAll(rc.AttachmentBody(length))
	if err != nil {
		t.Fatalf("read attachment body: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("body = %q, want %q", body, payload)
	}
}

func TestReadLineReturnsEOFOnClose(t *testing.T) {
	a, b := pipeConn(t)
	rc := New(b)

	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Close()
	}()

	if _, err := rc.ReadLine(); err != io.EOF && err != io.ErrClosedPipe {
		t.Fatalf("ReadLine after close = %v, want EOF-ish", err)
	}
}
