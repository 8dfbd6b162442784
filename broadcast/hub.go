package broadcast

import (
	"context"
	"sync"

	"github.com/hupe1980/crucible/logging"
)

// HubOptions configures a Hub.
type HubOptions struct {
	// Buffer is the per-subscriber queue length.
	Buffer int
	Logger logging.Logger
}

// Hub fans notifications out to live subscribers, typically server-sent
// event streams. A subscriber whose queue is full misses the notification.
type Hub struct {
	opts HubOptions

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

type subscriber struct {
	ch        chan Notification
	sessionID string
}

var _ Broadcaster = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub(optFns ...func(o *HubOptions)) *Hub {
	opts := HubOptions{Buffer: 64, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Buffer <= 0 {
		opts.Buffer = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Hub{opts: opts, subs: make(map[uint64]*subscriber)}
}

// Subscribe registers a subscriber. An empty sessionID receives every
// session. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notification, h.opts.Buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = &subscriber{ch: ch, sessionID: sessionID}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

// Broadcast implements Broadcaster.
func (h *Hub) Broadcast(_ context.Context, n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if s.sessionID != "" && n.SessionID != "" && s.sessionID != n.SessionID {
			continue
		}
		select {
		case s.ch <- n:
		default:
			h.opts.Logger.Warn("dropping notification for slow subscriber", "type", string(n.Type), "session_id", n.SessionID)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
	h.closed = true
}
