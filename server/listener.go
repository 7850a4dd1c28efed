// Package server implements the listening side of the exchange protocol:
// accept a connection, hand it to protocol.ActAsServer, and track
// in-flight connections for graceful shutdown using an accept-loop,
// per-connection-goroutine, WaitGroup-drain shape.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"mx/dispatch"
	"mx/diagnostics"
	"mx/exchange"
	"mx/identity"
	"mx/protocol"
	"mx/queue"
	"mx/subscription"
	"mx/tempstore"
)

// Listener hosts the server role of the exchange protocol over a single
// net.Listener, resolving a polling subscriber's queue via an optional
// subscription directory.
type Listener struct {
	listener      net.Listener
	dispatcher    dispatch.Dispatcher
	store         *tempstore.Store
	sink          *diagnostics.Sink
	opts          protocol.Options
	advertiseAddr string

	directory subscription.Directory
	queues    queueLookup

	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// queueLookup resolves a subscription URI to its in-process queue.
// Registered explicitly by the host — the subscription directory only
// advertises reachability, it does not itself hold the queues.
type queueLookup interface {
	Queue(uri string) (queue.Queue, error)
}

// StaticQueues is the simplest queueLookup: a fixed map built at startup.
type StaticQueues map[string]queue.Queue

func (m StaticQueues) Queue(uri string) (queue.Queue, error) {
	q, ok := m[uri]
	if !ok {
		return nil, fmt.Errorf("server: no queue registered for subscription %q", uri)
	}
	return q, nil
}

// New builds a Listener bound to network/address. advertiseAddr is the
// routable address registered with directory, if directory is non-nil —
// it may differ from address (":8080" resolves locally to "[::]:8080",
// which etcd watchers elsewhere cannot dial).
func New(network, address, advertiseAddr string, dispatcher dispatch.Dispatcher, queues queueLookup, directory subscription.Directory, sink *diagnostics.Sink) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Listener{
		listener:      ln,
		dispatcher:    dispatcher,
		store:         &tempstore.Store{},
		sink:          sink,
		opts:          protocol.Options{Sink: sink},
		advertiseAddr: advertiseAddr,
		directory:     directory,
		queues:        queues,
	}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Serve registers uri with the subscription directory (if one was
// supplied) and enters the accept loop. It blocks until the listener is
// closed by Shutdown, returning nil in that case.
func (l *Listener) Serve(uri string) error {
	if l.directory != nil && uri != "" {
		if err := l.directory.Register(uri, subscription.Registration{Addr: l.advertiseAddr}, 10); err != nil {
			return err
		}
	}

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.shutdown.Load() {
				return nil
			}
			return err
		}
		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	stream := exchange.New(conn, l.store)
	err := protocol.ActAsServer(context.Background(), stream, l.dispatcher, l.resolveQueue, l.opts)
	if err != nil {
		l.sink.Emit(diagnostics.ConnectionClosed, fmt.Sprintf("connection ended: %v", err))
	}
}

// resolveQueue adapts the Listener's queueLookup collaborator to
// protocol.QueueLookup's identity.Remote-keyed signature.
func (l *Listener) resolveQueue(remote identity.Remote) (queue.Queue, error) {
	if l.queues == nil {
		return nil, fmt.Errorf("server: no queue lookup configured for subscriber %q", remote.SubscriptionURI)
	}
	return l.queues.Queue(remote.SubscriptionURI)
}

// Shutdown stops accepting new connections and waits up to timeout for
// in-flight connections to finish their current exchange.
func (l *Listener) Shutdown(uri string, timeout time.Duration) error {
	if l.directory != nil && uri != "" {
		l.directory.Deregister(uri, l.advertiseAddr)
	}

	l.shutdown.Store(true)
	l.listener.Close()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server: timeout waiting for connections to finish")
	}
}
