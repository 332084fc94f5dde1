// Package gateway holds the websocket link to the chat platform adapter.
//
// The adapter dials in and pushes inbound_event frames; the hub answers each
// with an event_result and writes outbound deliveries to the most recently
// connected adapter. Hub implements platform.Transport.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/handoff/internal/observability"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/protocol"
	"github.com/ent0n29/handoff/internal/reliability"
)

// ErrNoAdapter is returned by deliveries while no adapter is connected.
var ErrNoAdapter = errors.New("no platform adapter connected")

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 2 << 20
)

// EventHandler processes one inbound platform event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev platform.Event) platform.Result
}

type adapterConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (a *adapterConn) writeJSON(ctx context.Context, v any) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = a.conn.SetWriteDeadline(deadline)
	return a.conn.WriteJSON(v)
}

func (a *adapterConn) ping() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

type Hub struct {
	log     logrus.FieldLogger
	metrics *observability.Metrics

	mu      sync.Mutex
	current *adapterConn
}

func NewHub(log logrus.FieldLogger, metrics *observability.Metrics) *Hub {
	return &Hub{log: log, metrics: metrics}
}

// Connected reports whether an adapter is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

func (h *Hub) SendText(ctx context.Context, to platform.Address, text string) error {
	return h.deliver(ctx, protocol.OutboundText{
		Type:       protocol.TypeOutboundText,
		DeliveryID: uuid.NewString(),
		To:         to,
		Text:       text,
	}, protocol.TypeOutboundText)
}

func (h *Hub) Forward(ctx context.Context, to platform.Address, msg platform.Message) error {
	return h.deliver(ctx, protocol.OutboundForward{
		Type:       protocol.TypeOutboundForward,
		DeliveryID: uuid.NewString(),
		To:         to,
		Message:    msg,
	}, protocol.TypeOutboundForward)
}

func (h *Hub) deliver(ctx context.Context, frame any, typ protocol.MessageType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	a := h.current
	h.mu.Unlock()
	if a == nil {
		return ErrNoAdapter
	}
	if err := a.writeJSON(ctx, frame); err != nil {
		return fmt.Errorf("gateway write: %w", err)
	}
	h.metrics.ObserveGatewayMessage("outbound", string(typ))
	return nil
}

// Serve attaches conn as the active adapter and processes its frames until
// the connection drops or ctx ends. A newer adapter replaces an older one for
// outbound traffic; the older one keeps being read until it disconnects.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, handler EventHandler) {
	a := &adapterConn{id: uuid.NewString(), conn: conn}
	log := h.log.WithField("adapter_id", a.id)

	h.mu.Lock()
	h.current = a
	h.mu.Unlock()
	log.Info("gateway: adapter connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.ping(); err != nil {
					cancel()
					_ = conn.Close()
					return
				}
			}
		}
	}()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && !reliability.IsRetryableCloseCode(closeErr.Code) {
				log.WithField("code", closeErr.Code).Info("gateway: adapter closed connection")
			} else if ctx.Err() == nil {
				log.WithError(err).Warn("gateway: adapter read failed")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		h.handleFrame(ctx, a, data, handler, log)
	}

	cancel()
	<-pingDone

	h.mu.Lock()
	if h.current == a {
		h.current = nil
	}
	h.mu.Unlock()
	log.Info("gateway: adapter disconnected")
}

func (h *Hub) handleFrame(ctx context.Context, a *adapterConn, data []byte, handler EventHandler, log logrus.FieldLogger) {
	parsed, err := protocol.ParseAdapterMessage(data)
	if err != nil {
		h.metrics.ObserveGatewayMessage("inbound", "invalid")
		errEvent := protocol.ErrorEvent{
			Type:   protocol.TypeErrorEvent,
			Code:   "invalid_adapter_message",
			Detail: err.Error(),
		}
		if err := a.writeJSON(ctx, errEvent); err == nil {
			h.metrics.ObserveGatewayMessage("outbound", string(protocol.TypeErrorEvent))
		}
		return
	}

	in, ok := parsed.(protocol.InboundEvent)
	if !ok {
		return
	}
	h.metrics.ObserveGatewayMessage("inbound", string(in.Type))

	res := handler.HandleEvent(ctx, in.Event)
	ack := protocol.EventResult{
		Type:    protocol.TypeEventResult,
		EventID: in.ID,
		Handled: res.Handled,
	}
	if err := a.writeJSON(ctx, ack); err != nil {
		log.WithError(err).WithField("event_id", in.ID).Warn("gateway: write event_result failed")
		return
	}
	h.metrics.ObserveGatewayMessage("outbound", string(protocol.TypeEventResult))
}
