package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"mx/dispatch"
	"mx/envelope"
)

func echoHandler(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
	return &envelope.ResponseMessage{CorrelationID: req.CorrelationID}, nil
}

func TestChainOrdersOuterToInner(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next dispatch.HandlerFunc) dispatch.HandlerFunc {
			return func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
				order = append(order, name+":before")
				resp, err := next(ctx, req)
				order = append(order, name+":after")
				return resp, err
			}
		}
	}

	handler := Chain(tag("A"), tag("B"))(echoHandler)
	if _, err := handler(context.Background(), &envelope.RequestMessage{}); err != nil {
		t.Fatalf("handler: %v", err)
	}

	want := []string{"A:before", "B:before", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestTimeoutReturnsDeadlineExceeded(t *testing.T) {
	slow := func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
		time.Sleep(50 * time.Millisecond)
		return &envelope.ResponseMessage{}, nil
	}
	handler := Timeout(5 * time.Millisecond)(slow)

	_, err := handler(context.Background(), &envelope.RequestMessage{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	handler := RateLimit(1, 1)(echoHandler)

	if _, err := handler(context.Background(), &envelope.RequestMessage{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := handler(context.Background(), &envelope.RequestMessage{}); err == nil {
		t.Fatalf("expected second call to be rate limited")
	}
}

func TestRetryRetriesOnlyDeadlineExceeded(t *testing.T) {
	calls := 0
	flaky := func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
		calls++
		if calls < 3 {
			return nil, context.DeadlineExceeded
		}
		return &envelope.ResponseMessage{}, nil
	}

	handler := Retry(5, time.Millisecond, nil)(flaky)
	_, err := handler(context.Background(), &envelope.RequestMessage{Service: "S", Method: "M"})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	failing := func(ctx context.Context, req *envelope.RequestMessage) (*envelope.ResponseMessage, error) {
		calls++
		return nil, errors.New("not retryable")
	}

	handler := Retry(5, time.Millisecond, nil)(failing)
	if _, err := handler(context.Background(), &envelope.RequestMessage{Service: "S", Method: "M"}); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", calls)
	}
}
