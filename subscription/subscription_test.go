package subscription

import (
	"testing"
	"time"
)

func dialLocalEtcd(t *testing.T) *EtcdDirectory {
	t.Helper()
	dir, err := NewEtcdDirectory([]string{"localhost:2379"})
	if err != nil {
		t.Skipf("no local etcd reachable: %v", err)
	}
	if _, err := dir.Discover("subscription-connectivity-check"); err != nil {
		t.Skipf("no local etcd reachable: %v", err)
	}
	return dir
}

func TestRegisterAndDiscover(t *testing.T) {
	dir := dialLocalEtcd(t)

	reg1 := Registration{Addr: "127.0.0.1:8001", Version: "1.0"}
	reg2 := Registration{Addr: "127.0.0.1:8002", Version: "1.0"}

	if err := dir.Register("urn:arith", reg1, 10); err != nil {
		t.Fatal(err)
	}
	if err := dir.Register("urn:arith", reg2, 10); err != nil {
		t.Fatal(err)
	}
	defer dir.Deregister("urn:arith", reg1.Addr)
	defer dir.Deregister("urn:arith", reg2.Addr)

	regs, err := dir.Discover("urn:arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 2 {
		t.Fatalf("expect 2 registrations, got %d", len(regs))
	}

	if err := dir.Deregister("urn:arith", reg1.Addr); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	regs, err = dir.Discover("urn:arith")
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 {
		t.Fatalf("expect 1 registration after deregister, got %d", len(regs))
	}
	if regs[0].Addr != reg2.Addr {
		t.Fatalf("expect %s, got %s", reg2.Addr, regs[0].Addr)
	}
}

func TestKeyPrefixIsScopedToURI(t *testing.T) {
	a := keyPrefix("urn:arith")
	b := keyPrefix("urn:other")
	if a == b {
		t.Fatalf("key prefixes for distinct URIs must differ")
	}
}
