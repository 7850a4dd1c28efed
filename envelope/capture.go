package envelope

import (
	"fmt"

	"github.com/google/uuid"
)

// Capture is the per-exchange registry of attachments discovered while
// deserializing a single envelope. Unlike an ambient capture installed
// into the serializer's internals, Capture is filled from an explicit
// visitor (see Envelope.Attachments) that walks the decoded message
// once — the data flow is auditable and Capture itself needs no
// synchronization, since exactly one goroutine owns it for the lifetime
// of a single Receive. The sending side writes the visitor's list
// directly and does not build a Capture.
type Capture struct {
	order []*DataStream
	byID  map[uuid.UUID]*DataStream
}

// NewCapture returns an empty capture, scoped to one Receive.
func NewCapture() *Capture {
	return &Capture{byID: make(map[uuid.UUID]*DataStream)}
}

// Register adds descriptors to the capture in the order given. The
// receiver registers the placeholder descriptors an envelope referenced,
// so incoming attachment blocks can be matched by id.
func (c *Capture) Register(streams ...*DataStream) error {
	for _, s := range streams {
		if _, exists := c.byID[s.ID]; exists {
			return fmt.Errorf("envelope: duplicate attachment id %s in envelope", s.ID)
		}
		c.byID[s.ID] = s
		c.order = append(c.order, s)
	}
	return nil
}

// Ordered returns the registered descriptors in registration order —
// the order the sender must write attachment blocks in.
func (c *Capture) Ordered() []*DataStream {
	return c.order
}

// Len reports how many descriptors are registered — the number of
// attachment blocks the receiver must read off the wire.
func (c *Capture) Len() int {
	return len(c.order)
}

// Lookup finds the descriptor with the given id, or reports ok=false if
// none was registered — an unknown attachment id on the wire is a fatal
// protocol error for the caller to raise.
func (c *Capture) Lookup(id uuid.UUID) (*DataStream, bool) {
	s, ok := c.byID[id]
	return s, ok
}
