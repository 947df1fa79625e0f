package record

import (
	"fmt"
	"time"
)

// EventLogEntry is one raw event kept for forensic replay. The payload is the
// event's JSON body, stored opaquely.
type EventLogEntry struct {
	id        uint
	eventType string
	payload   []byte
	createdAt time.Time
}

// NewEventLogEntry builds one raw log row.
func NewEventLogEntry(eventType string, payload []byte, createdAt time.Time) (*EventLogEntry, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return &EventLogEntry{
		eventType: eventType,
		payload:   payload,
		createdAt: createdAt,
	}, nil
}

// ReconstructEventLogEntry rebuilds a log row from persistence.
func ReconstructEventLogEntry(id uint, eventType string, payload []byte, createdAt time.Time) *EventLogEntry {
	return &EventLogEntry{id: id, eventType: eventType, payload: payload, createdAt: createdAt}
}

func (e *EventLogEntry) ID() uint             { return e.id }
func (e *EventLogEntry) EventType() string    { return e.eventType }
func (e *EventLogEntry) Payload() []byte      { return e.payload }
func (e *EventLogEntry) CreatedAt() time.Time { return e.createdAt }
