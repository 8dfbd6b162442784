package agent

import (
	"context"

	"github.com/hupe1980/crucible/core"
)

// BaseAgent bundles the default behaviour shared by agent kinds: identity,
// topic based reaction, the generic summary and a silent consult. Embed it
// and supply Execute to satisfy Agent.
type BaseAgent struct {
	desc Descriptor
}

// NewBaseAgent constructs a BaseAgent. An empty name defaults to the id.
func NewBaseAgent(desc Descriptor) BaseAgent {
	if desc.Name == "" {
		desc.Name = desc.ID
	}

	if desc.Priority <= 0 {
		desc.Priority = core.DefaultPriority
	}

	desc.ListenFor = append([]string(nil), desc.ListenFor...)
	desc.Dependencies = append([]string(nil), desc.Dependencies...)

	return BaseAgent{desc: desc}
}

// Descriptor returns the agent's static identity.
func (b *BaseAgent) Descriptor() Descriptor { return b.desc }

// ID returns the agent id.
func (b *BaseAgent) ID() string { return b.desc.ID }

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.desc.Name }

// React returns true iff the event topic is one the agent listens for.
func (b *BaseAgent) React(ev core.Event, _ map[string]any) bool {
	return b.desc.Listens(ev.Topic)
}

// Summarize formats data with DefaultSummary.
func (b *BaseAgent) Summarize(data map[string]any) string {
	return DefaultSummary(b.desc.ID, data)
}

// Consult has no answer by default.
func (b *BaseAgent) Consult(context.Context, string, map[string]any, map[string]any) (string, bool) {
	return "", false
}
