package envelope

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// DataStream is an out-of-band binary attachment referenced by id from
// within an envelope. A DataStream is either sender-side (it knows how
// to emit its own bytes via Write) or receiver-side (it was synthesized
// while decoding an envelope and must be bound to spooled bytes before
// Read can be called). Receiver-side streams are single-use: a second
// Read fails deterministically.
type DataStream struct {
	ID     uuid.UUID
	Length int64

	mu       sync.Mutex
	write    func(w io.Writer) error
	bind     func() (io.ReadCloser, error)
	consumed bool
}

// NewDataStream wraps an existing sender-side source — write is invoked
// exactly once, when the frame codec serializes this attachment's bytes.
func NewDataStream(length int64, write func(w io.Writer) error) *DataStream {
	return &DataStream{ID: uuid.New(), Length: length, write: write}
}

// NewDataStreamWithID is NewDataStream for a caller that must control the
// id (e.g. a retry that must reuse the original attachment id).
func NewDataStreamWithID(id uuid.UUID, length int64, write func(w io.Writer) error) *DataStream {
	return &DataStream{ID: id, Length: length, write: write}
}

// newReceiverStream is used by the envelope decoder to synthesize a
// placeholder descriptor for an attachment referenced on the wire. bind
// is supplied later, once the frame codec has spooled the attachment's
// bytes to temporary storage.
func newReceiverStream(id uuid.UUID, length int64) *DataStream {
	return &DataStream{ID: id, Length: length}
}

// Bind attaches the single-use reader to a receiver-side descriptor. It
// is called by the exchange stream once the attachment block with this
// id has been spooled. Binding twice is a programmer error and panics,
// since it can only happen from a codec bug, never from peer input.
func (d *DataStream) Bind(bind func() (io.ReadCloser, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bind != nil {
		panic("envelope: DataStream already bound")
	}
	d.bind = bind
}

// IsSenderSide reports whether this descriptor was created to emit bytes
// (true) as opposed to being synthesized while decoding (false).
func (d *DataStream) IsSenderSide() bool {
	return d.write != nil
}

// WriteTo emits this attachment's bytes to w. Valid only on sender-side
// descriptors.
func (d *DataStream) WriteTo(w io.Writer) error {
	if d.write == nil {
		return fmt.Errorf("envelope: attachment %s has no writer (receiver-side descriptor)", d.ID)
	}
	return d.write(w)
}

// Read returns a single-use reader over this attachment's bytes. Valid
// only on receiver-side descriptors that have been Bind-ed. The second
// call, and any call before binding, fails.
func (d *DataStream) Read() (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bind == nil {
		return nil, fmt.Errorf("envelope: attachment %s is not readable yet", d.ID)
	}
	if d.consumed {
		return nil, fmt.Errorf("envelope: attachment %s already consumed", d.ID)
	}
	d.consumed = true
	return d.bind()
}
