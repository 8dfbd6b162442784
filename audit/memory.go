package audit

import (
	"context"
	"sync"
)

// MemorySink keeps entries in memory, grouped by session.
type MemorySink struct {
	mu      sync.RWMutex
	entries map[string][]Entry
	order   []Entry
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make(map[string][]Entry)}
}

// Write implements Sink.
func (s *MemorySink) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.SessionID] = append(s.entries[e.SessionID], e)
	s.order = append(s.order, e)

	return nil
}

// Entries returns the entries of one session in sequence order.
func (s *MemorySink) Entries(sessionID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries[sessionID]...)
}

// All returns every entry in write order.
func (s *MemorySink) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.order...)
}

// EventTypes returns the event types of one session in order.
func (s *MemorySink) EventTypes(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries[sessionID]))
	for _, e := range s.entries[sessionID] {
		out = append(out, e.EventType)
	}

	return out
}
