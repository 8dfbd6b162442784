package broadcast

import (
	"context"
	"sync"
)

// Recorder keeps every notification it receives.
type Recorder struct {
	mu   sync.Mutex
	list []Notification
}

var _ Broadcaster = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Broadcast implements Broadcaster.
func (r *Recorder) Broadcast(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, n)
}

// Notifications returns everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}

// OfType returns the recorded notifications of type t.
func (r *Recorder) OfType(t Type) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notification
	for _, n := range r.list {
		if n.Type == t {
			out = append(out, n)
		}
	}

	return out
}

// Texts returns the text of every chat message.
func (r *Recorder) Texts() []string {
	var out []string
	for _, n := range r.OfType(TypeChatMessage) {
		out = append(out, n.Text)
	}

	return out
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = nil
}
