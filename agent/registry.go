package agent

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateAgent is returned when an id is registered twice.
var ErrDuplicateAgent = errors.New("agent: duplicate agent id")

// Registry is the ordered table of agents consulted for every event.
// Iteration order is registration order.
type Registry struct {
	mu    sync.RWMutex
	order []Agent
	byID  map[string]Agent
}

// NewRegistry creates a registry and registers agents in order.
func NewRegistry(agents ...Agent) (*Registry, error) {
	r := &Registry{byID: make(map[string]Agent)}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register appends a to the registry.
func (r *Registry) Register(a Agent) error {
	id := a.Descriptor().ID
	if id == "" {
		return errors.New("agent: empty agent id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, id)
	}

	r.byID[id] = a
	r.order = append(r.order, a)

	return nil
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]

	return a, ok
}

// Agents returns the agents in registration order.
func (r *Registry) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Agent(nil), r.order...)
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
