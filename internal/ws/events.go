package ws

import (
	"time"
)

type EventType string

const (
	EventAttendanceMarked EventType = "attendance.marked"
	EventIdentitySeen     EventType = "identity.seen"
	EventRegistryReloaded EventType = "registry.reloaded"
)

// Event is pushed to websocket clients. An empty SubjectID reaches every
// client; otherwise only clients watching that subject and clients
// watching everything receive it.
type Event struct {
	SubjectID string      `json:"subject_id,omitempty"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
