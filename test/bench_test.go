package test

import (
	"testing"

	"mx/clientpool"
	"mx/client"
	"mx/subscription"
	"mx/tempstore"

	"go.mongodb.org/mongo-driver/bson"
)

func setupBenchServerAndClient(b *testing.B, addr string) *client.Client {
	b.Helper()
	ln, err := newArithListener(addr, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { ln.Shutdown("", 0) })

	dir := newMemoryDirectory()
	dir.Register("urn:arith", subscription.Registration{Addr: addr}, 10)
	return client.NewTCP(dir, &clientpool.RoundRobin{}, 8, &tempstore.Store{})
}

// BenchmarkSerialCall measures one goroutine issuing calls back to back.
func BenchmarkSerialCall(b *testing.B) {
	cli := setupBenchServerAndClient(b, "127.0.0.1:29190")
	defer cli.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var reply arithReply
		if err := cli.Call("urn:arith", "Arith", "Add", arithArgs{A: 1, B: 2}, &reply); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkConcurrentCall measures many goroutines calling through the
// same Client concurrently, served from a ConnectionSet's per-address
// connection pool.
func BenchmarkConcurrentCall(b *testing.B) {
	cli := setupBenchServerAndClient(b, "127.0.0.1:29191")
	defer cli.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var reply arithReply
			if err := cli.Call("urn:arith", "Arith", "Add", arithArgs{A: 1, B: 2}, &reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// BenchmarkArgumentMarshal measures BSON encode/decode cost in
// isolation, no network involved.
func BenchmarkArgumentMarshal(b *testing.B) {
	args := arithArgs{A: 1, B: 2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, err := bson.Marshal(args)
		if err != nil {
			b.Fatal(err)
		}
		var out arithArgs
		if err := bson.Unmarshal(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}
