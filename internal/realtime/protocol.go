package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message types (client -> server).
const (
	TypeJoinRoom  = "joinRoom"
	TypeLeaveRoom = "leaveRoom"
)

// Outbound message types (server -> client).
const (
	TypeRoomJoined = "roomJoined"
	TypeRoomLeft   = "roomLeft"
	TypeOrderEvent = "orderEvent"
	TypeError      = "error"
)

// Rejection reasons carried in acknowledgements. Clients may display them.
const (
	ReasonDenied         = "denied"
	ReasonInvalidOrderID = "invalid_order_id"
	ReasonUnavailable    = "unavailable"
	ReasonRateLimited    = "rate_limited"
)

// Event kinds published by the order services.
const (
	KindStatusChanged   = "status-changed"
	KindLocationUpdated = "location-updated"
)

// InboundMessage is a control frame sent by the client.
type InboundMessage struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// Ack answers a joinRoom or leaveRoom request.
type Ack struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// OrderEventMessage is the wire form of an Event.
type OrderEventMessage struct {
	Type      string          `json:"type"`
	OrderID   string          `json:"orderId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emittedAt"`
}

// ErrorMessage reports a non-fatal problem with the last inbound frame.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// decodeInbound parses a control frame. Anything that is not a JSON object
// with a string "type" field is a protocol error; an unknown type is not.
func decodeInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&msg); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if dec.More() {
		return InboundMessage{}, fmt.Errorf("%w: trailing data after frame", ErrProtocol)
	}
	if msg.Type == "" {
		return InboundMessage{}, fmt.Errorf("%w: missing message type", ErrProtocol)
	}
	return msg, nil
}

// encodeEvent renders an Event once so every member shares the same bytes.
func encodeEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(OrderEventMessage{
		Type:      TypeOrderEvent,
		OrderID:   ev.OrderID,
		Kind:      ev.Kind,
		Payload:   payload,
		EmittedAt: ev.EmittedAt.UTC(),
	})
}

func marshalFrame(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
