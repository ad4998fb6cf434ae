// Package events defines the typed mutation event contract between the
// system of record and the graph sync worker.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/OmerRastgar/studio-sub002/internal/types"
)

// Event is one typed mutation emitted by the system of record. ID is the
// globally unique idempotency key; applying the same ID twice must be a
// no-op. Timestamp orders events from the same producer and drives the
// last-write-wins guard on user property updates.
type Event struct {
	Type      string    `json:"eventType"`
	ID        string    `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// Payload is the event-type-specific body. Field schemas per event type are
// documented on the handlers that consume them.
type Payload map[string]any

// New creates an event with a fresh uuid id and the current timestamp.
func New(eventType string, payload Payload) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// String extracts a required non-empty string field. A missing, empty, or
// mistyped field is a malformed payload: the returned error is
// non-retryable so the queue can dead-letter the event instead of spinning.
func (p Payload) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", types.NewError(types.EVENT_PAYLOAD_INVALID, "missing required field: "+key)
	}
	s, ok := v.(string)
	if !ok {
		return "", types.NewError(types.EVENT_PAYLOAD_INVALID, "field is not a string: "+key)
	}
	if s == "" {
		return "", types.NewError(types.EVENT_PAYLOAD_INVALID, "field is empty: "+key)
	}
	return s, nil
}

// OptionalString extracts a string field, returning "" when absent.
func (p Payload) OptionalString(key string) string {
	s, _ := p[key].(string)
	return s
}

// Value extracts a required field of any type.
func (p Payload) Value(key string) (any, error) {
	v, ok := p[key]
	if !ok {
		return nil, types.NewError(types.EVENT_PAYLOAD_INVALID, "missing required field: "+key)
	}
	return v, nil
}

// Properties extracts an optional nested map field, returning an empty map
// when absent.
func (p Payload) Properties(key string) map[string]any {
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Marshal encodes the event for queue storage.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event from queue storage.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, types.WrapError(types.EVENT_PAYLOAD_INVALID, "failed to decode event", err)
	}
	return e, nil
}
