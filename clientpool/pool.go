package clientpool

import (
	"fmt"
	"net"
	"sync"

	"mx/exchange"
	"mx/tempstore"
)

// Pool manages reusable exchange.Streams to a single server address. A
// stream is used exclusively by one goroutine at a time — no stream is
// ever lent out twice concurrently — so the buffered channel underneath
// doubles as a FIFO queue and a mutual-exclusion device for free.
type Pool struct {
	mu       sync.Mutex
	streams  chan *PooledStream
	addr     string
	maxConns int
	curConns int
	factory  func() (net.Conn, error)
	store    *tempstore.Store
}

// PooledStream wraps an exchange.Stream with pool bookkeeping.
type PooledStream struct {
	*exchange.Stream
	pool     *Pool
	unusable bool
}

// New creates a pool bounded at maxConns streams to addr. Streams are
// dialed lazily, on first demand.
func New(addr string, maxConns int, factory func() (net.Conn, error), store *tempstore.Store) *Pool {
	return &Pool{
		streams:  make(chan *PooledStream, maxConns),
		addr:     addr,
		maxConns: maxConns,
		factory:  factory,
		store:    store,
	}
}

// Get borrows a stream from the pool, dialing a new one if the pool is
// under capacity and empty, or blocking until one is returned if it is
// at capacity.
func (p *Pool) Get() (*PooledStream, error) {
	select {
	case ps := <-p.streams:
		if ps.unusable {
			return p.createNew()
		}
		return ps, nil
	default:
		if p.curConns < p.maxConns {
			return p.createNew()
		}
		ps := <-p.streams
		return ps, nil
	}
}

// Put returns a stream to the pool. A stream marked unusable (its
// connection failed) is closed and discarded instead of recycled.
func (p *Pool) Put(ps *PooledStream) {
	if ps.unusable {
		ps.Close()
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return
	}
	p.streams <- ps
}

// MarkUnusable flags ps so that a subsequent Put discards it rather than
// recycling it. Call this after any native transport error.
func (ps *PooledStream) MarkUnusable() {
	ps.unusable = true
}

// Close shuts down the pool, closing every idle stream it currently
// holds. Streams checked out via Get that are never Put back are not
// tracked here and must be closed by the caller.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.streams)
	for ps := range p.streams {
		ps.Close()
		p.curConns--
	}
	return nil
}

func (p *Pool) createNew() (*PooledStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.curConns >= p.maxConns {
		return nil, fmt.Errorf("clientpool: pool for %s exhausted", p.addr)
	}

	conn, err := p.factory()
	if err != nil {
		return nil, err
	}

	p.curConns++
	return &PooledStream{
		Stream: exchange.New(conn, p.store),
		pool:   p,
	}, nil
}
