package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/handoff/internal/platform"
)

// MessageType identifies gateway websocket payload variants.
type MessageType string

const (
	TypeInboundEvent    MessageType = "inbound_event"
	TypeEventResult     MessageType = "event_result"
	TypeOutboundText    MessageType = "outbound_text"
	TypeOutboundForward MessageType = "outbound_forward"
	TypeErrorEvent      MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// InboundEvent is one platform message pushed by the adapter.
type InboundEvent struct {
	Type MessageType `json:"type"`
	platform.Event
}

type EventResult struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"event_id"`
	Handled bool        `json:"handled"`
}

type OutboundText struct {
	Type       MessageType      `json:"type"`
	DeliveryID string           `json:"delivery_id"`
	To         platform.Address `json:"to"`
	Text       string           `json:"text"`
}

type OutboundForward struct {
	Type       MessageType      `json:"type"`
	DeliveryID string           `json:"delivery_id"`
	To         platform.Address `json:"to"`
	Message    platform.Message `json:"message"`
}

type ErrorEvent struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"event_id,omitempty"`
	Code    string      `json:"code"`
	Detail  string      `json:"detail"`
}

// ParseAdapterMessage decodes a frame sent by the platform adapter.
func ParseAdapterMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeInboundEvent:
		var msg InboundEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.SenderID) == "" {
			return nil, errors.New("invalid inbound_event: missing sender_id")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
