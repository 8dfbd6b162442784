// Package bus implements the per-run publish/subscribe event bus.
//
// Handlers subscribe to a topic or to the wildcard "*". Publish delivers an
// event to the union of both sets concurrently and returns only after every
// handler has finished. The first handler failure is returned to the
// publisher; a panicking handler is reported as ErrHandlerPanic.
package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/logging"
)

// Wildcard subscribes a handler to every topic.
const Wildcard = "*"

// ErrHandlerPanic wraps a panic recovered from a subscribed handler.
var ErrHandlerPanic = errors.New("bus: handler panicked")

// Handler processes one delivered event.
type Handler func(ctx context.Context, ev core.Event) error

// Options configures a Bus.
type Options struct {
	Logger logging.Logger
}

// Bus is an in-process pub/sub bus. It is safe for concurrent use. One bus
// is created per orchestration run and discarded afterwards.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	history  []core.Event
	logger   logging.Logger
}

// New creates an empty bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   opts.Logger,
	}
}

// Subscribe registers h for topic. Registering the same handler twice
// results in two deliveries per event.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[topic] = append(b.handlers[topic], h)
}

// SubscribeAll registers h for every topic.
func (b *Bus) SubscribeAll(h Handler) { b.Subscribe(Wildcard, h) }

// Publish appends ev to the history and runs every handler subscribed to
// ev.Topic or to the wildcard. It blocks until all handlers return.
func (b *Bus) Publish(ctx context.Context, ev core.Event) error {
	b.mu.Lock()
	b.history = append(b.history, ev)

	targets := make([]Handler, 0, len(b.handlers[ev.Topic])+len(b.handlers[Wildcard]))
	targets = append(targets, b.handlers[ev.Topic]...)
	if ev.Topic != Wildcard {
		targets = append(targets, b.handlers[Wildcard]...)
	}
	b.mu.Unlock()

	b.logger.Debug("publish", "topic", ev.Topic, "sender", ev.SenderID, "handlers", len(targets))

	if len(targets) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, h := range targets {
		g.Go(func() error {
			return safeCall(ctx, h, ev)
		})
	}

	if err := g.Wait(); err != nil {
		b.logger.Error("handler failed", "topic", ev.Topic, "error", err)
		return fmt.Errorf("publish %s: %w", ev.Topic, err)
	}

	return nil
}

// History returns a copy of every event published so far, in publish order.
func (b *Bus) History() []core.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Event, len(b.history))
	copy(out, b.history)

	return out
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, hs := range b.handlers {
		n += len(hs)
	}

	return n
}

func safeCall(ctx context.Context, h Handler, ev core.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrHandlerPanic, r, debug.Stack())
		}
	}()

	return h(ctx, ev)
}
