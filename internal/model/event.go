// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventStateChanged     EventType = "STATE_CHANGED"
	EventCommandCompleted EventType = "COMMAND_COMPLETED"
	EventCommandFailed    EventType = "COMMAND_FAILED"
	EventReadingAnomaly   EventType = "READING_ANOMALY"
	EventWarmUp           EventType = "WARM_UP"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	Device    string                 `json:"device"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Severity  string                 `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent creates an event stamped with a fresh ID
func NewDeviceEvent(eventType EventType, device, severity string, data map[string]interface{}) DeviceEvent {
	return DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Device:    device,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}

// StateChangedEventData describes a visible state transition
type StateChangedEventData struct {
	OldState DeviceState `json:"old_state"`
	NewState DeviceState `json:"new_state"`
	Status   string      `json:"status"`
}

// CommandEventData describes a dispatched command
type CommandEventData struct {
	OperationID uuid.UUID `json:"operation_id"`
	Command     string    `json:"command"`
	Argument    string    `json:"argument,omitempty"`
	Reply       string    `json:"reply,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}
