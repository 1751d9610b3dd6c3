// Package events fans console changes out to live subscribers.
//
// The service layer publishes an Event after every successful mutation.
// A Fanout delivers it to each registered sink (the WebSocket hub, the
// MQTT broker). Sink failures are logged and never fail the mutation that
// produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies what changed.
type Type string

// Event types.
const (
	DeviceCreated   Type = "device.created"
	DeviceUpdated   Type = "device.updated"
	DeviceDeleted   Type = "device.deleted"
	DeviceStatus    Type = "device.status"
	RegisterCreated Type = "register.created"
	RegisterUpdated Type = "register.updated"
	RegisterDeleted Type = "register.deleted"
	PushCompleted   Type = "push.completed"
)

// Event is one change notification.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New creates an event with a fresh ID and the current time.
func New(t Type, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Deleted is the payload of the *.deleted events.
type Deleted struct {
	ID string `json:"id"`
}

// StatusChange is the payload of DeviceStatus events.
type StatusChange struct {
	DeviceID string `json:"deviceId"`
	Status   string `json:"status"`
}

// Publisher delivers events to one destination.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}
