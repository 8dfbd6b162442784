package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	c := Chat("s", "hello", SenderSystem, VariantSystem, "")
	assert.Equal(t, TypeChatMessage, c.Type)
	assert.Equal(t, "hello", c.Text)
	assert.False(t, c.Timestamp.IsZero())

	p := WorkflowPause("s", PauseInfo{Reason: "SAFETY STOP", AgentID: "safety_triage", TriggeringAgentID: "user_assist"})
	assert.Equal(t, TypeWorkflowPause, p.Type)
	assert.Equal(t, "user_assist", p.TriggeringAgentID)

	assert.Equal(t, "user_kill_switch", WorkflowTerminated("s", "user_kill_switch").Reason)
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi(a, b, Discard)

	m.Broadcast(context.Background(), Chat("s", "one", SenderUser, VariantUser, ""))
	m.Broadcast(context.Background(), AgentUpdate("s", "x", StatusRunning, nil))

	assert.Len(t, a.Notifications(), 2)
	assert.Equal(t, []string{"one"}, b.Texts())
	assert.Len(t, a.OfType(TypeAgentUpdate), 1)

	a.Reset()
	assert.Empty(t, a.Notifications())
}

func TestHub_FilterAndUnsubscribe(t *testing.T) {
	h := NewHub(func(o *HubOptions) { o.Buffer = 4 })

	all, cancelAll := h.Subscribe("")
	one, cancelOne := h.Subscribe("s1")
	require.Equal(t, 2, h.Len())

	h.Broadcast(context.Background(), WorkflowStart("s1", "go"))
	h.Broadcast(context.Background(), WorkflowStart("s2", "go"))

	assert.Equal(t, "s1", (<-all).SessionID)
	assert.Equal(t, "s2", (<-all).SessionID)
	assert.Equal(t, "s1", (<-one).SessionID)
	assert.Empty(t, one)

	cancelOne()
	cancelOne()
	_, open := <-one
	assert.False(t, open)
	assert.Equal(t, 1, h.Len())

	h.Close()
	_, open = <-all
	assert.False(t, open)
	cancelAll()

	late, _ := h.Subscribe("")
	_, open = <-late
	assert.False(t, open)
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub(func(o *HubOptions) { o.Buffer = 1 })
	ch, cancel := h.Subscribe("")
	defer cancel()

	h.Broadcast(context.Background(), Chat("s", "first", SenderSystem, VariantSystem, ""))
	h.Broadcast(context.Background(), Chat("s", "second", SenderSystem, VariantSystem, ""))

	assert.Equal(t, "first", (<-ch).Text)
	assert.Empty(t, ch)
}
