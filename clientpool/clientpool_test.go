package clientpool

import (
	"net"
	"testing"

	"mx/tempstore"
)

func TestRoundRobinCyclesThroughCandidates(t *testing.T) {
	s := &RoundRobin{}
	candidates := []Target{{Addr: "a"}, {Addr: "b"}, {Addr: "c"}}

	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		picked, err := s.Pick(candidates)
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		seen[picked.Addr] = true
	}
	if len(seen) != 3 {
		t.Fatalf("round robin visited %d distinct candidates, want 3", len(seen))
	}
}

func TestRoundRobinNoCandidatesErrors(t *testing.T) {
	s := &RoundRobin{}
	if _, err := s.Pick(nil); err == nil {
		t.Fatalf("expected error picking from no candidates")
	}
}

func TestWeightedRandomFavorsHeavierWeight(t *testing.T) {
	s := &WeightedRandom{}
	candidates := []Target{{Addr: "light", Weight: 1}, {Addr: "heavy", Weight: 99}}

	heavyCount := 0
	for i := 0; i < 200; i++ {
		picked, err := s.Pick(candidates)
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		if picked.Addr == "heavy" {
			heavyCount++
		}
	}
	if heavyCount < 150 {
		t.Fatalf("heavy candidate picked %d/200 times, want at least 150", heavyCount)
	}
}

func TestConsistentHashIsStableForSameKey(t *testing.T) {
	ring := NewConsistentHash()
	ring.Add(Target{Addr: "node-1"})
	ring.Add(Target{Addr: "node-2"})
	ring.Add(Target{Addr: "node-3"})

	first, err := ring.Pick("affinity-key")
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := ring.Pick("affinity-key")
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		if again.Addr != first.Addr {
			t.Fatalf("Pick(%q) = %q, want stable %q", "affinity-key", again.Addr, first.Addr)
		}
	}
}

func TestConsistentHashEmptyRingErrors(t *testing.T) {
	ring := NewConsistentHash()
	if _, err := ring.Pick("anything"); err == nil {
		t.Fatalf("expected error picking from an empty ring")
	}
}

func pipePair() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestConnectionSetReusesPooledConnection(t *testing.T) {
	server, clientSide := pipePair()
	defer server.Close()

	dialed := 0
	dial := func(addr string) (net.Conn, error) {
		dialed++
		return clientSide, nil
	}

	set := NewConnectionSet(&RoundRobin{}, 2, dial, &tempstore.Store{Dir: t.TempDir()})
	defer set.Close()

	candidates := []Target{{Addr: "only-address"}}

	ps, err := set.Get(candidates)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	set.Put(ps)

	ps2, err := set.Get(candidates)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	set.Put(ps2)

	if dialed != 1 {
		t.Fatalf("dialed = %d, want 1 (connection should be reused)", dialed)
	}
}

func TestPoolDiscardsUnusableConnection(t *testing.T) {
	dialed := 0
	dial := func() (net.Conn, error) {
		dialed++
		server, clientSide := net.Pipe()
		server.Close()
		return clientSide, nil
	}

	p := New("addr", 2, dial, &tempstore.Store{Dir: t.TempDir()})
	ps, err := p.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	ps.MarkUnusable()
	p.Put(ps)

	if _, err := p.Get(); err != nil {
		t.Fatalf("Get after discard: %v", err)
	}
	if dialed != 2 {
		t.Fatalf("dialed = %d, want 2 (unusable connection should not be recycled)", dialed)
	}
}
