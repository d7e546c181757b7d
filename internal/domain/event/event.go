package event

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is an abstract outbound notification. The transport layer renders
// and delivers it; the core never formats user-facing text.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	InstanceID int64                  `json:"instance_id,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  time.Time              `json:"timestamp"`
}

// New creates a new domain event with auto-generated ID and timestamp
func New(eventType Type, instanceID int64, payload map[string]interface{}) *Event {
	return &Event{
		ID:         generateID(),
		Type:       eventType,
		InstanceID: instanceID,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	return &Event{
		ID:         e.ID,
		Type:       e.Type,
		InstanceID: e.InstanceID,
		Payload:    newPayload,
		Timestamp:  e.Timestamp,
	}
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// generateID creates a unique ID using timestamp and random bytes
func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
