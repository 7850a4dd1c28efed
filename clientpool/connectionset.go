package clientpool

import (
	"fmt"
	"net"
	"sync"

	"mx/tempstore"
)

// ConnectionSet is the client connection set: given one or more server
// addresses, it keeps a small Pool of already-handshaken connections per
// address and hands one out using a pluggable Selector. Candidates are
// supplied by the caller on each Get (typically the result of a
// subscription.Directory.Discover call, or a static address list), so a
// ConnectionSet never goes stale itself — only the Pools it lazily
// creates per address are long-lived.
type ConnectionSet struct {
	mu       sync.Mutex
	pools    map[string]*Pool
	selector Selector
	maxConns int
	dial     func(addr string) (net.Conn, error)
	store    *tempstore.Store
}

// NewConnectionSet builds a connection set that dials with dial and caps
// each address's pool at maxConns connections.
func NewConnectionSet(selector Selector, maxConns int, dial func(addr string) (net.Conn, error), store *tempstore.Store) *ConnectionSet {
	return &ConnectionSet{
		pools:    make(map[string]*Pool),
		selector: selector,
		maxConns: maxConns,
		dial:     dial,
		store:    store,
	}
}

// Get selects one of candidates and borrows a connection from that
// address's pool, dialing a fresh connection if none is idle.
func (s *ConnectionSet) Get(candidates []Target) (*PooledStream, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("clientpool: no candidate addresses supplied")
	}

	target, err := s.selector.Pick(candidates)
	if err != nil {
		return nil, err
	}

	return s.poolFor(target.Addr).Get()
}

// Put returns a previously-Get stream to its address's pool.
func (s *ConnectionSet) Put(ps *PooledStream) {
	s.poolFor(ps.pool.addr).Put(ps)
}

// Close shuts down every address's pool.
func (s *ConnectionSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		p.Close()
	}
	return nil
}

func (s *ConnectionSet) poolFor(addr string) *Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pools[addr]; ok {
		return p
	}
	p := New(addr, s.maxConns, func() (net.Conn, error) { return s.dial(addr) }, s.store)
	s.pools[addr] = p
	return p
}
