package agent

import (
	"context"
	"slices"

	"github.com/hupe1980/crucible/core"
)

// Descriptor is the static identity of an agent kind. Priority feeds the
// administrator's arbitration; ListenFor drives the default React predicate.
type Descriptor struct {
	ID           string
	Name         string
	Priority     int
	Dependencies []string
	ListenFor    []string
	HumanInLoop  bool
}

// Listens reports whether topic is one of the descriptor's interests.
func (d Descriptor) Listens(topic string) bool {
	return slices.Contains(d.ListenFor, topic)
}

// Agent is the capability set every agent kind provides.
//
// React must be side-effect free. Execute returns modeled failures as an
// output with StatusError; a non-nil error is reserved for defects and makes
// the engine abort the agent's branch. Summarize never panics on missing
// fields. Consult returns false when the agent has nothing to add.
type Agent interface {
	Descriptor() Descriptor
	React(ev core.Event, view map[string]any) bool
	Execute(ctx context.Context, input, view map[string]any) (*core.AgentOutput, error)
	Summarize(data map[string]any) string
	Consult(ctx context.Context, question string, input, view map[string]any) (string, bool)
}
