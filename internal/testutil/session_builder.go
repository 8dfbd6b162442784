package testutil

import (
	"github.com/hupe1980/crucible/session"
)

// SessionBuilder helps construct session states with fluent chaining.
// Example:
//
//	st := NewSessionBuilder("sess-1").Input("transcript", "t").Merge("safety_triage", data).Build()
type SessionBuilder struct {
	id     string
	input  map[string]any
	steps  []func(st *session.State)
	status session.Status
}

// NewSessionBuilder creates a builder for a running session with id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, input: map[string]any{}}
}

// Input sets one input key.
func (b *SessionBuilder) Input(key string, val any) *SessionBuilder {
	b.input[key] = val
	return b
}

// Merge records an agent's output in the context.
func (b *SessionBuilder) Merge(agentID string, data map[string]any) *SessionBuilder {
	b.steps = append(b.steps, func(st *session.State) { st.Merge(agentID, data) })
	return b
}

// Ask records an open clarification question.
func (b *SessionBuilder) Ask(agentID, question string) *SessionBuilder {
	b.steps = append(b.steps, func(st *session.State) { st.Ask(agentID, question, "") })
	return b
}

// Answer records a user answer.
func (b *SessionBuilder) Answer(agentID, answer string) *SessionBuilder {
	b.steps = append(b.steps, func(st *session.State) { st.Answer(agentID, answer) })
	return b
}

// Status sets the final status. Terminated cancels the session context.
func (b *SessionBuilder) Status(s session.Status) *SessionBuilder {
	b.status = s
	return b
}

// Build returns the session state.
func (b *SessionBuilder) Build() *session.State {
	st := session.NewState(b.id, b.input)

	for _, step := range b.steps {
		step(st)
	}

	switch b.status {
	case "", session.StatusRunning:
	case session.StatusTerminated:
		st.Terminate()
	default:
		st.SetStatus(b.status)
	}

	return st
}
