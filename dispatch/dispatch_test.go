package dispatch

import (
	"context"
	"fmt"
	"testing"

	"mx/envelope"
	"go.mongodb.org/mongo-driver/bson"
)

type EchoArgs struct {
	Text string
}

type EchoReply struct {
	Text string
}

type EchoService struct{}

func (s *EchoService) Say(ctx context.Context, args *EchoArgs) (*EchoReply, error) {
	return &EchoReply{Text: args.Text}, nil
}

func (s *EchoService) Fail(ctx context.Context, args *EchoArgs) (*EchoReply, error) {
	return nil, fmt.Errorf("deliberate failure")
}

// NotCompatible is skipped by NewService: wrong number of return values.
func (s *EchoService) NotCompatible(ctx context.Context, args *EchoArgs) *EchoReply {
	return nil
}

func TestNewServiceDiscoversCompatibleMethods(t *testing.T) {
	svc, err := NewService(&EchoService{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.Name() != "EchoService" {
		t.Fatalf("Name() = %q, want EchoService", svc.Name())
	}
	if _, ok := svc.method["NotCompatible"]; ok {
		t.Fatalf("NotCompatible should have been skipped")
	}
	if _, ok := svc.method["Say"]; !ok {
		t.Fatalf("Say should have been discovered")
	}
}

func TestRegistryDispatchRoundTrip(t *testing.T) {
	svc, err := NewService(&EchoService{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	reg := NewRegistry()
	reg.Register(svc)

	args, err := bson.Marshal(EchoArgs{Text: "hello"})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}

	resp, err := reg.Dispatch(context.Background(), &envelope.RequestMessage{
		CorrelationID: "c1",
		Service:       "EchoService",
		Method:        "Say",
		Arguments:     args,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var reply EchoReply
	if err := bson.Unmarshal(resp.Result, &reply); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if reply.Text != "hello" {
		t.Fatalf("reply.Text = %q, want hello", reply.Text)
	}
}

func TestRegistryDispatchUnknownMethod(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Dispatch(context.Background(), &envelope.RequestMessage{Service: "X", Method: "Y"})
	if err == nil {
		t.Fatalf("expected error for unregistered method")
	}
}

func TestRegistryDispatchPropagatesHandlerError(t *testing.T) {
	svc, err := NewService(&EchoService{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	reg := NewRegistry()
	reg.Register(svc)

	_, err = reg.Dispatch(context.Background(), &envelope.RequestMessage{
		Service: "EchoService",
		Method:  "Fail",
	})
	if err == nil {
		t.Fatalf("expected error from Fail handler")
	}
}
