package queue

import (
	"sync"

	"mx/envelope"
)

// waiterTable routes a response to the channel its matching request's
// caller is blocked on, keyed by correlation id.
type waiterTable struct {
	mu sync.Mutex
	m  map[string]chan *envelope.ResponseMessage
}

func newWaiterTable() *waiterTable {
	return &waiterTable{m: make(map[string]chan *envelope.ResponseMessage)}
}

func (t *waiterTable) register(correlationID string) <-chan *envelope.ResponseMessage {
	ch := make(chan *envelope.ResponseMessage, 1)
	t.mu.Lock()
	t.m[correlationID] = ch
	t.mu.Unlock()
	return ch
}

func (t *waiterTable) deliver(resp *envelope.ResponseMessage) {
	t.mu.Lock()
	ch, ok := t.m[resp.CorrelationID]
	if ok {
		delete(t.m, resp.CorrelationID)
	}
	t.mu.Unlock()
	if ok {
		ch <- resp
	}
}
