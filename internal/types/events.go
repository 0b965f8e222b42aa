// internal/types/events.go
package types

import (
	"encoding/json"
	"fmt"
)

// Server event type tags carried in the {type, data} envelope.
const (
	EventChoreCreated     = "chore.created"
	EventChoreUpdated     = "chore.updated"
	EventChoreCompleted   = "chore.completed"
	EventChoreSkipped     = "chore.skipped"
	EventChoreDeleted     = "chore.deleted"
	EventChoreStatus      = "chore.status"
	EventSubtaskUpdated   = "subtask.updated"
	EventSubtaskCompleted = "subtask.completed"
	EventConnected        = "connection.established"
	EventHeartbeat        = "heartbeat"
	EventError            = "error"
)

// Event is the envelope for every message pushed over a realtime channel.
// Data stays raw until the dispatcher decodes it into the payload matching
// the type tag.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeEvent parses a raw message body into an Event. An empty or missing
// type tag is a decode failure; the data payload may legitimately be absent
// (heartbeats carry none).
func DecodeEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode event: missing type tag")
	}
	return &ev, nil
}

// ChorePayload is the data carried by chore.* lifecycle events.
type ChorePayload struct {
	Chore   Chore       `json:"chore"`
	User    *EventActor `json:"user,omitempty"`
	ChoreID int64       `json:"choreId,omitempty"`
}

// EventActor identifies the user whose action produced an event.
type EventActor struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
}

// SubtaskPayload is the data carried by subtask.* events.
type SubtaskPayload struct {
	ChoreID   int64 `json:"choreId"`
	SubtaskID int64 `json:"subtaskId,omitempty"`
	Completed bool  `json:"completed,omitempty"`
}

// ErrorPayload is the data carried by server-sent error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ChorePayload decodes the event data as a chore lifecycle payload.
func (e *Event) ChorePayload() (*ChorePayload, error) {
	var p ChorePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// SubtaskPayload decodes the event data as a subtask payload.
func (e *Event) SubtaskPayload() (*SubtaskPayload, error) {
	var p SubtaskPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return &p, nil
}

// ErrorPayload decodes the event data as a server error payload. A payload
// that fails to decode still yields a usable message.
func (e *Event) ErrorPayload() *ErrorPayload {
	var p ErrorPayload
	if err := json.Unmarshal(e.Data, &p); err != nil || p.Message == "" {
		return &ErrorPayload{Message: "an error occurred with real-time updates"}
	}
	return &p
}
