package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"

	"github.com/ent0n29/handoff/internal/logging"
	"github.com/ent0n29/handoff/internal/platform"
)

type fakePublisher struct {
	mu       sync.Mutex
	failures []error
	bodies   [][]byte
	exchange string
	closed   bool
}

func (f *fakePublisher) Publish(_ context.Context, exchange string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	f.exchange = exchange
	f.bodies = append(f.bodies, append([]byte(nil), body...))
	return nil
}

func (f *fakePublisher) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func init() {
	reconnectBase = time.Millisecond
	reconnectCap = time.Millisecond
}

func TestSendTextPublishesFrame(t *testing.T) {
	pub := &fakePublisher{}
	tr := NewTransport("handoff.outbound", func() (Publisher, error) { return pub, nil }, logging.Discard(), nil)

	if err := tr.SendText(context.Background(), platform.To("77", "1001"), "hello"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if pub.exchange != "handoff.outbound" {
		t.Fatalf("exchange = %q, want %q", pub.exchange, "handoff.outbound")
	}
	if len(pub.bodies) != 1 {
		t.Fatalf("published %d bodies, want 1", len(pub.bodies))
	}

	var frame map[string]any
	if err := json.Unmarshal(pub.bodies[0], &frame); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if frame["type"] != "outbound_text" || frame["text"] != "hello" {
		t.Fatalf("unexpected frame: %v", frame)
	}
	to, _ := frame["to"].(map[string]any)
	if to["group_id"] != "77" || to["user_id"] != "1001" {
		t.Fatalf("to = %v", to)
	}
	if id, _ := frame["delivery_id"].(string); id == "" {
		t.Fatalf("missing delivery_id")
	}
}

func TestForwardPublishesSegments(t *testing.T) {
	pub := &fakePublisher{}
	tr := NewTransport("x", func() (Publisher, error) { return pub, nil }, logging.Discard(), nil)

	msg := platform.Message{Segments: []platform.Segment{
		{Type: platform.SegmentText, Text: "look"},
		{Type: platform.SegmentImage, URL: "https://img.example/1.png"},
	}}
	if err := tr.Forward(context.Background(), platform.Direct("1001"), msg); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	var frame struct {
		Type    string           `json:"type"`
		Message platform.Message `json:"message"`
	}
	if err := json.Unmarshal(pub.bodies[0], &frame); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if frame.Type != "outbound_forward" || len(frame.Message.Segments) != 2 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestPublishReconnectsOnce(t *testing.T) {
	first := &fakePublisher{failures: []error{errors.New("connection reset")}}
	second := &fakePublisher{}
	dials := 0
	tr := NewTransport("x", func() (Publisher, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		return second, nil
	}, logging.Discard(), nil)

	if err := tr.SendText(context.Background(), platform.Direct("1"), "hi"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if dials != 2 {
		t.Fatalf("dials = %d, want 2", dials)
	}
	if !first.closed {
		t.Fatalf("failed publisher was not closed")
	}
	if len(second.bodies) != 1 {
		t.Fatalf("second publisher got %d bodies, want 1", len(second.bodies))
	}
}

func TestPublishGivesUpAfterRetry(t *testing.T) {
	pub := &fakePublisher{failures: []error{errors.New("down"), errors.New("still down")}}
	tr := NewTransport("x", func() (Publisher, error) { return pub, nil }, logging.Discard(), nil)

	if err := tr.SendText(context.Background(), platform.Direct("1"), "hi"); err == nil {
		t.Fatalf("expected error after retry")
	}
}

func TestPublishDoesNotRetryPermanentBrokerError(t *testing.T) {
	pub := &fakePublisher{failures: []error{&amqp.Error{Code: 403, Reason: "ACCESS_REFUSED"}}}
	dials := 0
	tr := NewTransport("x", func() (Publisher, error) {
		dials++
		return pub, nil
	}, logging.Discard(), nil)

	if err := tr.SendText(context.Background(), platform.Direct("1"), "hi"); err == nil {
		t.Fatalf("expected error")
	}
	if dials != 1 {
		t.Fatalf("dials = %d, want 1", dials)
	}
}

func TestDialFailureIsReported(t *testing.T) {
	tr := NewTransport("x", func() (Publisher, error) { return nil, errors.New("refused") }, logging.Discard(), nil)
	if err := tr.SendText(context.Background(), platform.Direct("1"), "hi"); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestPublishSurfacesBrokerNack(t *testing.T) {
	pub := &fakePublisher{failures: []error{ErrNacked, ErrNacked}}
	dials := 0
	tr := NewTransport("x", func() (Publisher, error) {
		dials++
		return pub, nil
	}, logging.Discard(), nil)

	err := tr.SendText(context.Background(), platform.Direct("1"), "operator accepted")
	if !errors.Is(err, ErrNacked) {
		t.Fatalf("SendText() error = %v, want %v", err, ErrNacked)
	}
	if dials != 2 {
		t.Fatalf("dials = %d, want 2", dials)
	}
}

func TestPublishDoesNotRetryUnroutable(t *testing.T) {
	pub := &fakePublisher{failures: []error{fmt.Errorf("%w: 312 NO_ROUTE", ErrUnroutable)}}
	dials := 0
	tr := NewTransport("x", func() (Publisher, error) {
		dials++
		return pub, nil
	}, logging.Discard(), nil)

	if err := tr.Forward(context.Background(), platform.Direct("1"), platform.TextMessage("hi")); !errors.Is(err, ErrUnroutable) {
		t.Fatalf("Forward() error = %v, want %v", err, ErrUnroutable)
	}
	if dials != 1 {
		t.Fatalf("dials = %d, want 1", dials)
	}
}

func TestAwaitConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("ack", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation, 1)
		confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
		if err := awaitConfirm(ctx, confirms, make(chan amqp.Return, 1), time.Second); err != nil {
			t.Fatalf("awaitConfirm() error = %v", err)
		}
	})

	t.Run("nack", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation, 1)
		confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
		if err := awaitConfirm(ctx, confirms, make(chan amqp.Return, 1), time.Second); !errors.Is(err, ErrNacked) {
			t.Fatalf("awaitConfirm() error = %v, want %v", err, ErrNacked)
		}
	})

	t.Run("returned", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation, 1)
		returns := make(chan amqp.Return, 1)
		returns <- amqp.Return{ReplyCode: 312, ReplyText: "NO_ROUTE"}
		confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
		if err := awaitConfirm(ctx, confirms, returns, time.Second); !errors.Is(err, ErrUnroutable) {
			t.Fatalf("awaitConfirm() error = %v, want %v", err, ErrUnroutable)
		}
	})

	t.Run("channel closed", func(t *testing.T) {
		confirms := make(chan amqp.Confirmation)
		close(confirms)
		if err := awaitConfirm(ctx, confirms, make(chan amqp.Return, 1), time.Second); !errors.Is(err, amqp.ErrClosed) {
			t.Fatalf("awaitConfirm() error = %v, want %v", err, amqp.ErrClosed)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		if err := awaitConfirm(ctx, make(chan amqp.Confirmation), make(chan amqp.Return, 1), 10*time.Millisecond); err == nil {
			t.Fatalf("awaitConfirm() error = nil, want timeout")
		}
	})
}
