// Package amqp publishes outbound deliveries to a RabbitMQ fanout exchange,
// for deployments where the platform adapter consumes from a broker instead
// of holding a websocket to the gateway.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/ent0n29/handoff/internal/observability"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/protocol"
	"github.com/ent0n29/handoff/internal/reliability"
)

var (
	reconnectBase = 200 * time.Millisecond
	reconnectCap  = 2 * time.Second
)

// DialFunc opens a publisher.
type DialFunc func() (Publisher, error)

// Transport implements platform.Transport on top of a Publisher. A failed
// publish closes the connection and retries once on a fresh one.
type Transport struct {
	exchange string
	dial     DialFunc
	log      logrus.FieldLogger
	metrics  *observability.Metrics

	mu  sync.Mutex
	pub Publisher
}

// Dial connects to amqpURL and returns a ready transport.
func Dial(amqpURL, exchange string, log logrus.FieldLogger, metrics *observability.Metrics) (*Transport, error) {
	t := NewTransport(exchange, func() (Publisher, error) {
		return NewAMQPPublisher(amqpURL)
	}, log, metrics)
	pub, err := t.dial()
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	t.pub = pub
	return t, nil
}

// NewTransport builds a transport that connects lazily through dial.
func NewTransport(exchange string, dial DialFunc, log logrus.FieldLogger, metrics *observability.Metrics) *Transport {
	return &Transport{exchange: exchange, dial: dial, log: log, metrics: metrics}
}

func (t *Transport) SendText(ctx context.Context, to platform.Address, text string) error {
	return t.publish(ctx, protocol.OutboundText{
		Type:       protocol.TypeOutboundText,
		DeliveryID: uuid.NewString(),
		To:         to,
		Text:       text,
	}, protocol.TypeOutboundText)
}

func (t *Transport) Forward(ctx context.Context, to platform.Address, msg platform.Message) error {
	return t.publish(ctx, protocol.OutboundForward{
		Type:       protocol.TypeOutboundForward,
		DeliveryID: uuid.NewString(),
		To:         to,
		Message:    msg,
	}, protocol.TypeOutboundForward)
}

func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pub != nil {
		t.pub.Close()
		t.pub = nil
	}
}

func (t *Transport) publish(ctx context.Context, frame any, typ protocol.MessageType) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if !retryable(err) {
				return err
			}
			t.log.WithError(err).WithField("exchange", t.exchange).Warn("amqp publish failed, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, reconnectBase, reconnectCap)):
			}
		}
		if t.pub == nil {
			pub, dialErr := t.dial()
			if dialErr != nil {
				err = fmt.Errorf("amqp dial: %w", dialErr)
				continue
			}
			t.pub = pub
		}
		if err = t.pub.Publish(ctx, t.exchange, body); err == nil {
			t.metrics.ObserveGatewayMessage("outbound", string(typ))
			return nil
		}
		t.pub.Close()
		t.pub = nil
	}
	return err
}

// retryable classifies broker errors by reply code. An unroutable message
// stays unroutable on a new connection. Anything else, such as a dropped
// socket or a nack, gets one more try.
func retryable(err error) bool {
	if errors.Is(err, ErrUnroutable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return reliability.IsRetryableBrokerCode(amqpErr.Code)
	}
	return true
}
