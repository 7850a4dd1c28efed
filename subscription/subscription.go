// Package subscription provides the etcd-backed subscription directory:
// a distributed phonebook mapping a subscription URI to the polling
// server addresses currently willing to serve it. It is the same
// lease/keepalive/watch shape as a service registry, keyed by
// subscription URI instead of service name, since a subscription
// directory answers "who is polling for this URI" rather than "who
// implements this service".
package subscription

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registration describes one poller willing to serve a subscription URI.
type Registration struct {
	Addr    string // network address the poller is reachable on
	Version string
}

// Directory is the interface the exchange protocol's subscriber side
// depends on. EtcdDirectory is the production implementation.
type Directory interface {
	Register(uri string, reg Registration, ttl int64) error
	Deregister(uri string, addr string) error
	Discover(uri string) ([]Registration, error)
	Watch(uri string) <-chan []Registration
}

// EtcdDirectory implements Directory using etcd v3.
type EtcdDirectory struct {
	client *clientv3.Client
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(endpoints []string) (*EtcdDirectory, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDirectory{client: c}, nil
}

func keyPrefix(uri string) string {
	return "/mx/subscription/" + uri + "/"
}

// Register advertises addr as willing to poll for uri, under a TTL
// lease that is kept alive in the background. If the process dies
// without deregistering, the lease expires and the entry disappears on
// its own — no ghost pollers surviving a crash.
func (d *EtcdDirectory) Register(uri string, reg Registration, ttl int64) error {
	ctx := context.TODO()

	lease, err := d.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(reg)
	if err != nil {
		return err
	}

	_, err = d.client.Put(ctx, keyPrefix(uri)+reg.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes addr's registration for uri. Call during graceful
// shutdown, before the listener stops accepting polling connections.
func (d *EtcdDirectory) Deregister(uri string, addr string) error {
	_, err := d.client.Delete(context.TODO(), keyPrefix(uri)+addr)
	return err
}

// Discover returns every poller currently registered for uri.
func (d *EtcdDirectory) Discover(uri string) ([]Registration, error) {
	resp, err := d.client.Get(context.TODO(), keyPrefix(uri), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	regs := make([]Registration, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var reg Registration
		if err := json.Unmarshal(kv.Value, &reg); err != nil {
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// Watch emits the updated poller list for uri whenever it changes.
func (d *EtcdDirectory) Watch(uri string) <-chan []Registration {
	ch := make(chan []Registration, 1)
	go func() {
		watchChan := d.client.Watch(context.TODO(), keyPrefix(uri), clientv3.WithPrefix())
		for range watchChan {
			regs, _ := d.Discover(uri)
			ch <- regs
		}
	}()
	return ch
}
