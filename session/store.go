package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/hupe1980/crucible/core"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session: not found")

// ErrExists is returned by CreateWithID for an id already in use.
var ErrExists = errors.New("session: already exists")

// Store keeps live sessions for the lifetime of the process.
type Store interface {
	Create(input map[string]any) (*State, error)
	CreateWithID(id string, input map[string]any) (*State, error)
	Get(id string) (*State, error)
	Delete(id string) error
	List() []string
}

// InMemoryStore is a volatile Store storing sessions in a process local
// map. It is safe for concurrent access. Returned states are shared, not
// cloned: a State guards itself.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*State)}
}

// Create allocates a session with a fresh id.
func (s *InMemoryStore) Create(input map[string]any) (*State, error) {
	return s.CreateWithID(core.NewID(), input)
}

// CreateWithID allocates a session under id.
func (s *InMemoryStore) CreateWithID(id string, input map[string]any) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return nil, ErrExists
	}

	st := NewState(id, input)
	s.sessions[id] = st

	return st, nil
}

// Get returns the session stored under id.
func (s *InMemoryStore) Get(id string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	return st, nil
}

// Delete removes the session stored under id.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}

	delete(s.sessions, id)

	return nil
}

// List returns the ids of all live sessions, sorted.
func (s *InMemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
