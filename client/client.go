// Package client implements the calling side of the exchange protocol:
// service discovery via a subscription.Directory, address selection via
// a clientpool.ConnectionSet, and the actual exchange via
// protocol.ActAsClient (discover → pick → borrow a connection → call →
// return it).
package client

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"mx/clientpool"
	"mx/envelope"
	"mx/protocol"
	"mx/subscription"
	"mx/tempstore"
)

// Client performs calls against a subscription's current pollers, or
// against a fixed address set when no directory is configured.
type Client struct {
	directory subscription.Directory
	conns     *clientpool.ConnectionSet
}

// New builds a Client that dials with dial, selects among candidates
// with selector, and discovers candidate addresses through directory.
// directory may be nil, in which case Call requires an explicit address
// via CallAddr instead of a subscription URI.
func New(directory subscription.Directory, selector clientpool.Selector, maxConnsPerAddr int, dial func(addr string) (net.Conn, error), store *tempstore.Store) *Client {
	return &Client{
		directory: directory,
		conns:     clientpool.NewConnectionSet(selector, maxConnsPerAddr, dial, store),
	}
}

// NewTCP is a convenience constructor that dials plain TCP addresses.
func NewTCP(directory subscription.Directory, selector clientpool.Selector, maxConnsPerAddr int, store *tempstore.Store) *Client {
	return New(directory, selector, maxConnsPerAddr, func(addr string) (net.Conn, error) {
		return net.Dial("tcp", addr)
	}, store)
}

// Call discovers the current pollers for subscriptionURI, picks one,
// and invokes service.method against it with args marshaled as the
// request arguments. The unmarshaled result is written into reply.
func (c *Client) Call(subscriptionURI, service, method string, args any, reply any) error {
	if c.directory == nil {
		return fmt.Errorf("client: no subscription directory configured, use CallAddr")
	}
	regs, err := c.directory.Discover(subscriptionURI)
	if err != nil {
		return err
	}
	if len(regs) == 0 {
		return fmt.Errorf("client: no pollers registered for subscription %q", subscriptionURI)
	}

	candidates := make([]clientpool.Target, len(regs))
	for i, r := range regs {
		candidates[i] = clientpool.Target{Addr: r.Addr, Weight: 1}
	}

	return c.call(candidates, service, method, args, reply)
}

// CallAddr invokes service.method against one of addrs directly,
// bypassing subscription discovery — for talking to a fixed server
// fleet with no subscription directory in front of it.
func (c *Client) CallAddr(addrs []string, service, method string, args any, reply any) error {
	candidates := make([]clientpool.Target, len(addrs))
	for i, a := range addrs {
		candidates[i] = clientpool.Target{Addr: a, Weight: 1}
	}
	return c.call(candidates, service, method, args, reply)
}

func (c *Client) call(candidates []clientpool.Target, service, method string, args any, reply any) error {
	argBytes, err := bson.Marshal(args)
	if err != nil {
		return fmt.Errorf("client: marshaling arguments: %w", err)
	}

	req := &envelope.RequestMessage{
		CorrelationID: uuid.NewString(),
		Service:       service,
		Method:        method,
		Arguments:     argBytes,
	}

	ps, err := c.conns.Get(candidates)
	if err != nil {
		return err
	}

	resp, err := protocol.ActAsClient(ps.Stream, req)
	if err != nil {
		ps.MarkUnusable()
		c.conns.Put(ps)
		return err
	}
	c.conns.Put(ps)

	if resp.Err != nil {
		return fmt.Errorf("client: %s.%s: %s: %s", service, method, resp.Err.Kind, resp.Err.Message)
	}
	if reply == nil {
		return nil
	}
	return bson.Unmarshal(resp.Result, reply)
}

// Close shuts down every pooled connection this client holds.
func (c *Client) Close() error {
	return c.conns.Close()
}
