// Package protocol defines the events exchanged between the agent process and
// the web client over the event bus. Every event carries a direction tag plus a
// discriminated event name; payloads are validated at the boundary and unknown
// tags are rejected rather than silently ignored.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DirectionServerToClient tags events published by the agent.
	DirectionServerToClient = "btoc"
	// DirectionClientToServer tags events published by the web client.
	DirectionClientToServer = "ctob"
)

// Server-to-client event names.
const (
	EventReady       = "ready"
	EventAudioOutput = "audioOutput"
	EventTextStart   = "textStart"
	EventTextOutput  = "textOutput"
	EventTextStop    = "textStop"
	EventEnd         = "end"
)

// Client-to-server event names.
const (
	EventAudioInput       = "audioInput"
	EventTerminateSession = "terminateSession"
)

// Event is one transport frame: a direction tag, a discriminated event name and
// the event's payload.
type Event struct {
	Direction string          `json:"direction"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// AudioPayload carries a numbered batch of base64 audio chunks. The bus offers
// no ordering guarantee, so receivers reorder by Sequence.
type AudioPayload struct {
	Blobs    []string `json:"blobs"`
	Sequence int64    `json:"sequence"`
}

type TextStartPayload struct {
	ID              string `json:"id"`
	Role            string `json:"role"`
	GenerationStage string `json:"generationStage"`
}

type TextOutputPayload struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TextStopPayload struct {
	ID         string `json:"id"`
	StopReason string `json:"stopReason"`
}

// EndPayload closes a session on the client side. An empty reason signals clean
// completion; a non-empty reason signals failure.
type EndPayload struct {
	Reason string `json:"reason,omitempty"`
}

type emptyPayload struct{}

// DecodeError reports a frame that failed boundary validation.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ServerEvent builds a server-to-client event, marshaling payload as data.
func ServerEvent(event string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Event{Direction: DirectionServerToClient, Event: event, Data: data}, nil
}

// ClientEvent builds a client-to-server event. Used by tests and local clients.
func ClientEvent(event string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Event{Direction: DirectionClientToServer, Event: event, Data: data}, nil
}

// Decode parses and validates one transport frame. Unknown direction/event
// combinations and malformed payloads yield a *DecodeError.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, badFrame("invalid json frame", "")
	}
	if err := Validate(ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks an already-parsed frame against the event catalog.
func Validate(ev Event) error {
	switch ev.Direction {
	case DirectionServerToClient:
		switch ev.Event {
		case EventReady:
			return validatePayload[emptyPayload](ev)
		case EventAudioOutput:
			return validateAudio(ev)
		case EventTextStart:
			return validatePayload[TextStartPayload](ev)
		case EventTextOutput:
			return validatePayload[TextOutputPayload](ev)
		case EventTextStop:
			return validatePayload[TextStopPayload](ev)
		case EventEnd:
			return validatePayload[EndPayload](ev)
		default:
			return unsupported("unsupported server event", "event")
		}
	case DirectionClientToServer:
		switch ev.Event {
		case EventAudioInput:
			return validateAudio(ev)
		case EventTerminateSession:
			return validatePayload[emptyPayload](ev)
		default:
			return unsupported("unsupported client event", "event")
		}
	default:
		return badFrame("missing or unknown direction", "direction")
	}
}

func validateAudio(ev Event) error {
	var p AudioPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return badFrame("invalid audio payload", ev.Event+".data")
	}
	if p.Blobs == nil {
		return badFrame("audio payload requires blobs", ev.Event+".data.blobs")
	}
	if p.Sequence < 0 {
		return badFrame("audio sequence must be >= 0", ev.Event+".data.sequence")
	}
	return nil
}

func validatePayload[T any](ev Event) error {
	var p T
	if len(ev.Data) == 0 {
		return badFrame("missing data", ev.Event+".data")
	}
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return badFrame("invalid payload", ev.Event+".data")
	}
	return nil
}

// Audio decodes the payload of an audioInput/audioOutput event.
func (ev Event) Audio() (AudioPayload, error) {
	var p AudioPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return AudioPayload{}, badFrame("invalid audio payload", ev.Event+".data")
	}
	return p, nil
}

// End decodes the payload of an end event.
func (ev Event) End() (EndPayload, error) {
	var p EndPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return EndPayload{}, badFrame("invalid end payload", ev.Event+".data")
	}
	return p, nil
}
