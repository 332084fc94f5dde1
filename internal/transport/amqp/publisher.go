package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

const confirmTimeout = 5 * time.Second

var (
	// ErrNacked means the broker refused to take responsibility for a message.
	ErrNacked = errors.New("amqp: publish not acknowledged by broker")
	// ErrUnroutable means the exchange had no queue bound to receive the message.
	ErrUnroutable = errors.New("amqp: message returned unroutable")
)

// Publisher publishes one message body to an exchange and reports whether the
// broker accepted it.
type Publisher interface {
	Publish(ctx context.Context, exchange string, body []byte) error
	Close()
}

// AMQPPublisher publishes with mandatory routing on a channel in confirm
// mode. Publish returns only after the broker acks, nacks, or returns the
// message.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	returns  chan amqp.Return
}

// NewAMQPPublisher connects to RabbitMQ and opens a confirming channel.
func NewAMQPPublisher(amqpURL string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQPPublisher{
		conn:     conn,
		channel:  ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		returns:  ch.NotifyReturn(make(chan amqp.Return, 1)),
	}, nil
}

// Publish declares the fanout exchange, publishes a JSON body to it and waits
// for the broker's confirmation. Callers must not publish concurrently.
func (p *AMQPPublisher) Publish(ctx context.Context, exchange string, body []byte) error {
	err := p.channel.ExchangeDeclare(
		exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	err = p.channel.Publish(
		exchange,
		"",
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}
	return awaitConfirm(ctx, p.confirms, p.returns, confirmTimeout)
}

// awaitConfirm waits for the confirmation of a single publish. The broker
// sends basic.return before the ack of an unroutable mandatory message, so a
// pending return is checked once the ack arrives.
func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation, returns <-chan amqp.Return, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c, ok := <-confirms:
		if !ok {
			return amqp.ErrClosed
		}
		select {
		case r := <-returns:
			return fmt.Errorf("%w: %d %s", ErrUnroutable, r.ReplyCode, r.ReplyText)
		default:
		}
		if !c.Ack {
			return ErrNacked
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("amqp: no publish confirmation within %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
