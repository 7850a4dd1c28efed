// Package clientpool implements the client connection set: given one or
// more server addresses, it keeps a small set of already-handshaken
// exchange connections per address and hands one out to a caller using
// a pluggable selection strategy (round-robin, weighted-random, or
// consistent-hash). Each connection is checked out exclusively to one
// caller at a time, matching the single-threaded-per-connection model:
// a caller holds it for the duration of one exchange and then returns
// it to the pool for reuse.
package clientpool

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"sort"
	"sync/atomic"
)

// Target is one candidate server address, with an optional weight for
// strategies that favor higher-capacity servers.
type Target struct {
	Addr   string
	Weight int
}

// Selector picks one target from a candidate list. ConnectionSet calls
// it on every Get, whether the chosen address then reuses a pooled
// connection or dials a new one, so it must be goroutine-safe.
type Selector interface {
	Pick(candidates []Target) (*Target, error)
	Name() string
}

// RoundRobin distributes connection attempts evenly across candidates
// using a lock-free atomic counter.
type RoundRobin struct {
	counter int64
}

func (s *RoundRobin) Pick(candidates []Target) (*Target, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("clientpool: no candidates available")
	}
	index := atomic.AddInt64(&s.counter, 1) % int64(len(candidates))
	return &candidates[index], nil
}

func (s *RoundRobin) Name() string { return "RoundRobin" }

// WeightedRandom picks among candidates probabilistically, in
// proportion to Weight.
type WeightedRandom struct{}

func (s *WeightedRandom) Pick(candidates []Target) (*Target, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("clientpool: no candidates available")
	}

	total := 0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return &candidates[0], nil
	}

	r := rand.Intn(total)
	for i := range candidates {
		r -= candidates[i].Weight
		if r < 0 {
			return &candidates[i], nil
		}
	}
	return nil, fmt.Errorf("clientpool: unexpected error in weighted selection")
}

func (s *WeightedRandom) Name() string { return "WeightedRandom" }

// ConsistentHash maps a caller-chosen affinity key to one of several
// candidate targets using a hash ring, so the same key keeps hitting
// the same target across calls — useful when a server holds warm local
// state. 100 virtual nodes per candidate keeps the ring's load roughly
// uniform even with few real entries. Unlike RoundRobin/WeightedRandom,
// ConsistentHash does not implement Selector directly: picking requires
// a key, and Add must run before any Pick.
type ConsistentHash struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]Target
}

// NewConsistentHash returns an empty hash ring.
func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{replicas: 100, nodes: make(map[uint32]Target)}
}

// Add places target onto the ring with this ring's virtual node count.
func (b *ConsistentHash) Add(target Target) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", target.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = target
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick returns the target responsible for key: the first ring node at
// or after key's hash, wrapping around to the first node if key's hash
// is larger than every node on the ring.
func (b *ConsistentHash) Pick(key string) (*Target, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("clientpool: hash ring is empty")
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}

	t := b.nodes[b.ring[idx]]
	return &t, nil
}
