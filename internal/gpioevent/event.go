// Package gpioevent defines the transient event type hardware adapters
// produce and the dispatcher consumes.
package gpioevent

import "time"

// Event is a single raw edge notification from a hardware component.
// It is never persisted; its lifetime ends once the dispatcher's handlers
// have run.
type Event struct {
	ComponentID string
	EventType   string
	Data        map[string]any
	Timestamp   time.Time
}

// New builds an Event stamped with the current time.
func New(componentID, eventType string, data map[string]any) Event {
	return Event{
		ComponentID: componentID,
		EventType:   eventType,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// IntData reads an integer field out of Data, defaulting to 0 if absent or
// of the wrong type. Hardware adapters populate Data with plain Go values,
// so this avoids a type-assertion per call site.
func (e Event) IntData(key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
