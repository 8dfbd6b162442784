package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crucible/core"
)

func TestPublish_DeliversToTopicAndWildcard(t *testing.T) {
	b := New()

	var mu sync.Mutex
	got := []string{}

	b.Subscribe("START", func(_ context.Context, ev core.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "topic:"+ev.Topic)
		return nil
	})
	b.SubscribeAll(func(_ context.Context, ev core.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "all:"+ev.Topic)
		return nil
	})
	var unrelated atomic.Bool
	b.Subscribe("OTHER", func(context.Context, core.Event) error {
		unrelated.Store(true)
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), core.NewEvent("START", "system", nil, 1)))

	assert.ElementsMatch(t, []string{"topic:START", "all:START"}, got)
	assert.False(t, unrelated.Load())
	assert.Equal(t, 3, b.SubscriberCount())
}

func TestPublish_DuplicateSubscriptionDeliversTwice(t *testing.T) {
	b := New()

	var n atomic.Int32
	h := func(context.Context, core.Event) error {
		n.Add(1)
		return nil
	}
	b.Subscribe("T", h)
	b.Subscribe("T", h)

	require.NoError(t, b.Publish(context.Background(), core.NewEvent("T", "a", nil, 1)))
	assert.Equal(t, int32(2), n.Load())
}

func TestPublish_HandlersRunConcurrentlyAndPublishWaits(t *testing.T) {
	b := New()

	// Both handlers must be in flight at the same time to pass the barrier.
	var barrier sync.WaitGroup
	barrier.Add(2)

	var done atomic.Int32
	for i := 0; i < 2; i++ {
		b.Subscribe("T", func(context.Context, core.Event) error {
			barrier.Done()
			barrier.Wait()
			time.Sleep(10 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}

	finished := make(chan error, 1)
	go func() { finished <- b.Publish(context.Background(), core.NewEvent("T", "a", nil, 1)) }()

	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not return; handlers are not concurrent")
	}

	assert.Equal(t, int32(2), done.Load())
}

func TestPublish_PropagatesHandlerError(t *testing.T) {
	b := New()
	boom := errors.New("boom")

	var sibling atomic.Bool
	b.Subscribe("T", func(context.Context, core.Event) error { return boom })
	b.Subscribe("T", func(context.Context, core.Event) error {
		time.Sleep(5 * time.Millisecond)
		sibling.Store(true)
		return nil
	})

	err := b.Publish(context.Background(), core.NewEvent("T", "a", nil, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, sibling.Load(), "publish must wait for every handler")
}

func TestPublish_RecoversPanicAsError(t *testing.T) {
	b := New()
	b.SubscribeAll(func(context.Context, core.Event) error { panic("kaboom") })

	err := b.Publish(context.Background(), core.NewEvent("T", "a", nil, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestHistory_KeepsPublishOrder(t *testing.T) {
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, core.NewEvent("A", "x", nil, 1)))
	require.NoError(t, b.Publish(ctx, core.NewEvent("B", "y", nil, 1)))

	h := b.History()
	require.Len(t, h, 2)
	assert.Equal(t, "A", h[0].Topic)
	assert.Equal(t, "B", h[1].Topic)

	h[0].Topic = "mutated"
	assert.Equal(t, "A", b.History()[0].Topic)
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := New()
	require.NoError(t, b.Publish(context.Background(), core.NewEvent("NOBODY", "x", nil, 1)))
	assert.Len(t, b.History(), 1)
}
