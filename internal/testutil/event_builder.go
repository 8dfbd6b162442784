package testutil

import (
	"time"

	"github.com/hupe1980/crucible/core"
)

// EventBuilder provides a fluent helper for constructing bus events.
// Example:
//
//	ev := NewEventBuilder("RISK_ASSESSED").Sender("risk_assessment").Priority(8).Set("risk_level", "high").Build()
type EventBuilder struct {
	id        string
	topic     string
	sender    string
	priority  int
	payload   map[string]any
	timestamp time.Time
}

// NewEventBuilder creates a builder for topic, sent by the system sender
// with the default priority.
func NewEventBuilder(topic string) *EventBuilder {
	return &EventBuilder{topic: topic, sender: core.SystemSender, payload: map[string]any{}}
}

// ID overrides the generated event id.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Sender sets the sender id.
func (b *EventBuilder) Sender(s string) *EventBuilder { b.sender = s; return b }

// Priority sets the sender priority.
func (b *EventBuilder) Priority(p int) *EventBuilder { b.priority = p; return b }

// Set adds one payload key.
func (b *EventBuilder) Set(key string, val any) *EventBuilder {
	b.payload[key] = val
	return b
}

// Payload replaces the payload.
func (b *EventBuilder) Payload(p map[string]any) *EventBuilder {
	b.payload = core.CloneMap(p)
	return b
}

// At pins the timestamp.
func (b *EventBuilder) At(t time.Time) *EventBuilder { b.timestamp = t; return b }

// Build returns the event.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.topic, b.sender, core.CloneMap(b.payload), b.priority)

	if b.id != "" {
		ev.ID = b.id
	}
	if !b.timestamp.IsZero() {
		ev.Timestamp = b.timestamp
	}

	return ev
}

// Stream builds one event per sender, all on topic with priority 1. It is
// shorthand for feeding the administrator a sender sequence.
func Stream(topic string, senders ...string) []core.Event {
	out := make([]core.Event, 0, len(senders))
	for _, s := range senders {
		out = append(out, NewEventBuilder(topic).Sender(s).Priority(1).Build())
	}

	return out
}
