// Package exchange turns the frame codec into the protocol-meaningful
// primitives the exchange state machine composes: identify as a role,
// read the remote's identity, the HELLO/PROCEED handshake, and
// send/receive of a full message plus its attachments.
package exchange

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"mx/envelope"
	"mx/frame"
	"mx/identity"
	"mx/rpcerrors"
	"mx/tempstore"
)

// Stream is one connection's exchange-level handle. It owns the
// transport exclusively: callers never touch it directly once a Stream
// wraps it. Stream is not safe for concurrent use by multiple
// schedulers — exactly one exchange is in flight on a connection at a
// time, per the single-threaded-per-connection model.
type Stream struct {
	codec *frame.Codec
	store *tempstore.Store

	sendMu sync.Mutex

	// identifiedAsClient is the connection-reuse flag: a client that has
	// already identified on this connection does not re-identify for
	// subsequent exchanges. It is scoped to this Stream and needs no
	// synchronization given the single-threaded model.
	identifiedAsClient bool
}

// New wraps conn in an exchange Stream. store spools received
// attachments; pass nil to use the system temp directory.
func New(conn io.ReadWriteCloser, store *tempstore.Store) *Stream {
	if store == nil {
		store = &tempstore.Store{}
	}
	return &Stream{codec: frame.New(conn), store: store}
}

// Close closes the underlying transport.
func (s *Stream) Close() error { return s.codec.Close() }

// AlreadyIdentifiedAsClient reports whether IdentifyAsClient has
// already succeeded once on this Stream.
func (s *Stream) AlreadyIdentifiedAsClient() bool { return s.identifiedAsClient }

func (s *Stream) writeIdentityLine(r identity.Remote) error {
	line, err := r.Line(identity.Current)
	if err != nil {
		return err
	}
	// Each identity line is followed by an extra empty line for human
	// readability when a connection is inspected with a plain terminal.
	// Both go out in a single flushed write, so the peer receives them as
	// one unit.
	return s.codec.WriteLine(line + "\n")
}

// ReadRemoteIdentity reads and parses one identification line. A line
// that does not parse is reported as a protocol error.
func (s *Stream) ReadRemoteIdentity() (identity.Remote, identity.Version, error) {
	line, err := s.codec.ReadLine()
	if err != nil {
		return identity.Remote{}, identity.Version{}, err
	}
	remote, v, err := identity.Parse(line)
	if err != nil {
		return identity.Remote{}, identity.Version{}, rpcerrors.NewProtocolDetail(err.Error())
	}
	return remote, v, nil
}

// IdentifyAsClient announces this side as a client and verifies the
// remote replies as a server.
func (s *Stream) IdentifyAsClient() error {
	if err := s.writeIdentityLine(identity.NewClient()); err != nil {
		return err
	}
	remote, _, err := s.ReadRemoteIdentity()
	if err != nil {
		return err
	}
	if remote.Kind != identity.KindServer {
		return rpcerrors.NewProtocolError(identity.KindServer.String(), remote.Kind.String())
	}
	s.identifiedAsClient = true
	return nil
}

// IdentifyAsSubscriber announces this side as a subscriber claiming uri
// and verifies the remote replies as a server.
func (s *Stream) IdentifyAsSubscriber(uri string) error {
	if err := s.writeIdentityLine(identity.NewSubscriber(uri)); err != nil {
		return err
	}
	remote, _, err := s.ReadRemoteIdentity()
	if err != nil {
		return err
	}
	if remote.Kind != identity.KindServer {
		return rpcerrors.NewProtocolError(identity.KindServer.String(), remote.Kind.String())
	}
	return nil
}

// IdentifyAsServer announces this side as a server.
func (s *Stream) IdentifyAsServer() error {
	return s.writeIdentityLine(identity.NewServer())
}

// SendHello writes the HELLO line.
func (s *Stream) SendHello() error { return s.codec.WriteLine("HELLO") }

// ExpectHello reads a line and requires it to be HELLO.
func (s *Stream) ExpectHello() error {
	line, err := s.codec.ReadLine()
	if err != nil {
		return err
	}
	if line != "HELLO" {
		return rpcerrors.NewProtocolError("HELLO", line)
	}
	return nil
}

// SendProceed writes the PROCEED line.
func (s *Stream) SendProceed() error { return s.codec.WriteLine("PROCEED") }

// ExpectProceed reads a line and requires it to be PROCEED. End-of-stream
// here is distinguished as an authentication-like failure: in the
// target deployment a silent close at this point is almost always a TLS
// trust rejection, not a generic protocol violation.
func (s *Stream) ExpectProceed() error {
	line, err := s.codec.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return rpcerrors.ErrAuthLike
		}
		return err
	}
	if line != "PROCEED" {
		return rpcerrors.NewProtocolError("PROCEED", line)
	}
	return nil
}

// Send writes the envelope, then writes every attachment its payload
// references, in the order the payload lists them.
func (s *Stream) Send(env *envelope.Envelope) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	streams, err := s.codec.WriteEnvelope(env)
	if err != nil {
		return err
	}
	for _, ds := range streams {
		if err := s.codec.WriteAttachment(ds); err != nil {
			return err
		}
	}
	return nil
}

// Receive opens a fresh capture, reads the envelope, then drains exactly
// as many attachment blocks as the envelope referenced — spooling each
// to a temporary file and binding the matching descriptor's single-use
// reader to it. A nil envelope with a nil error is the legal "no more
// work" sentinel.
func (s *Stream) Receive() (*envelope.Envelope, error) {
	env, streams, err := s.codec.ReadEnvelope()
	if err != nil {
		return nil, err
	}

	capture := envelope.NewCapture()
	if err := capture.Register(streams...); err != nil {
		return nil, err
	}

	for i := 0; i < capture.Len(); i++ {
		id, length, err := s.codec.ReadAttachmentHeader()
		if err != nil {
			return nil, err
		}
		ds, ok := capture.Lookup(id)
		if !ok {
			return nil, rpcerrors.NewProtocolDetail(fmt.Sprintf("unknown attachment id %s in incoming envelope", id))
		}
		body := s.codec.AttachmentBody(length)
		spooled, err := s.store.Spool(id, body, length)
		if err != nil {
			return nil, err
		}
		ds.Bind(spooled.Open)
	}

	return env, nil
}
