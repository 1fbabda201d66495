package liveupdate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event is a feed event.
type Event interface {
	EventType() string
}

// VisitUpdateEvent reports a change in a visit's processing status.
type VisitUpdateEvent struct {
	VisitID string          `json:"visit_id"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *VisitUpdateEvent) EventType() string { return "visit_update" }

// RedFlagAlertEvent is a high-priority alert raised for a visit.
type RedFlagAlertEvent struct {
	VisitID  string          `json:"visit_id"`
	Severity string          `json:"severity"`
	RedFlags json.RawMessage `json:"red_flags,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (e *RedFlagAlertEvent) EventType() string { return "red_flag_alert" }

// PongEvent answers a keepalive ping.
type PongEvent struct{}

func (e *PongEvent) EventType() string { return "pong" }

// ConnectedEvent is emitted after each successful connection.
type ConnectedEvent struct {
	ClinicID string
}

func (e *ConnectedEvent) EventType() string { return "connected" }

// DisconnectedEvent is emitted when a connection drops and a reconnect
// is scheduled.
type DisconnectedEvent struct {
	Err error
}

func (e *DisconnectedEvent) EventType() string { return "disconnected" }

// UnknownEvent carries frames of an unrecognized type.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e *UnknownEvent) EventType() string { return e.Type }

func decodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode live update frame: %w", err)
	}

	switch strings.TrimSpace(envelope.Type) {
	case "visit_update":
		var e VisitUpdateEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode visit_update: %w", err)
		}
		return &e, nil
	case "red_flag_alert":
		var e RedFlagAlertEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode red_flag_alert: %w", err)
		}
		if e.Severity == "" {
			e.Severity = "UNKNOWN"
		}
		return &e, nil
	case "pong":
		return &PongEvent{}, nil
	case "":
		return nil, fmt.Errorf("live update frame missing type")
	default:
		return &UnknownEvent{Type: envelope.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
