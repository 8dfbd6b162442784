package core

import (
	"time"

	"github.com/google/uuid"
)

// Reserved sender ids. Events from these senders are never treated as
// agent activity by the administrator.
const (
	SystemSender     = "system"
	SupervisorSender = "supervisor"
)

// DefaultPriority is applied to events published without an explicit
// sender priority.
const DefaultPriority = 1

// Event is the unit of communication on the bus. After it has been
// published it must be treated as immutable: handlers receive copies and
// must not modify the payload map.
//
// Ordering is the publish order within a session. Timestamp is informational
// only and never used for ordering decisions.
type Event struct {
	ID             string         `json:"id"`
	Topic          string         `json:"topic"`
	SenderID       string         `json:"sender_id"`
	Payload        map[string]any `json:"payload"`
	SenderPriority int            `json:"sender_priority"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewEvent creates an event stamped with a fresh id and the current UTC time.
// A non-positive priority is replaced by DefaultPriority.
func NewEvent(topic, sender string, payload map[string]any, priority int) Event {
	if priority <= 0 {
		priority = DefaultPriority
	}

	if payload == nil {
		payload = map[string]any{}
	}

	return Event{
		ID:             NewID(),
		Topic:          topic,
		SenderID:       sender,
		Payload:        payload,
		SenderPriority: priority,
		Timestamp:      time.Now().UTC(),
	}
}

// IsReservedSender reports whether id belongs to the engine itself rather
// than to an agent.
func IsReservedSender(id string) bool {
	return id == SystemSender || id == SupervisorSender
}

// NewID returns a random identifier used for sessions and events.
func NewID() string { return uuid.NewString() }
