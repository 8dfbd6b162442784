package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/crucible/core"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusTerminated Status = "terminated"
)

// State is the mutable record of one orchestration session: the shared
// context blackboard, lifecycle flags and the ordered clarification log.
//
// Contract:
//   - Only Merge writes agent keys; each agent owns exactly one key
//   - Termination is one-way; a terminated session never changes status again
//   - Snapshot and View return deep copies safe for concurrent readers
//   - Clarification records keep the order in which questions were asked
type State struct {
	ID        string
	Input     map[string]any
	CreatedAt time.Time

	mu             sync.Mutex
	ctx            map[string]any
	answers        map[string]string
	clarifications []core.Clarification
	status         Status
	faults         int
	updatedAt      time.Time

	runMu  sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
}

// NewState creates a running session with an empty context.
func NewState(id string, input map[string]any) *State {
	runCtx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()

	return &State{
		ID:        id,
		Input:     core.CloneMap(input),
		CreatedAt: now,
		ctx:       map[string]any{},
		answers:   map[string]string{},
		status:    StatusRunning,
		updatedAt: now,
		runCtx:    runCtx,
		cancel:    cancel,
	}
}

// Locked exposes the state's fields to code running inside WithLock.
type Locked struct{ s *State }

// WithLock runs fn inside the session's mutual exclusion region. fn must
// not call the self-locking methods of State.
func (s *State) WithLock(fn func(l Locked)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(Locked{s: s})
}

// Context returns the live context map. Callers must not retain it.
func (l Locked) Context() map[string]any { return l.s.contextLocked() }

// Merge writes data under agentID.
func (l Locked) Merge(agentID string, data map[string]any) { l.s.mergeLocked(agentID, data) }

// Status returns the current status.
func (l Locked) Status() Status { return l.s.status }

// SetStatus changes the status unless the session is terminated.
func (l Locked) SetStatus(st Status) bool { return l.s.setStatusLocked(st) }

// Terminated reports whether the session was terminated.
func (l Locked) Terminated() bool { return l.s.status == StatusTerminated }

// Done reports whether the session reached a final status.
func (l Locked) Done() bool {
	return l.s.status == StatusTerminated || l.s.status == StatusCompleted
}

// Ask records a clarification question from agentID.
func (l Locked) Ask(agentID, question, suggested string) core.Clarification {
	return l.s.askLocked(agentID, question, suggested)
}

// Merge writes data under agentID.
func (s *State) Merge(agentID string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(agentID, data)
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus changes the status unless the session is terminated.
func (s *State) SetStatus(st Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStatusLocked(st)
}

// Terminate marks the session terminated and cancels in-flight work. It
// returns false if the session was already terminated.
func (s *State) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusTerminated {
		return false
	}

	s.status = StatusTerminated
	s.updatedAt = time.Now().UTC()
	s.cancel()

	return true
}

// Terminated reports whether the session was terminated.
func (s *State) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusTerminated
}

// Done returns a context cancelled on termination. Agent executions
// derive their context from it.
func (s *State) Done() context.Context { return s.runCtx }

// BeginRun serialises runs of this session. The returned func releases it.
func (s *State) BeginRun() func() {
	s.runMu.Lock()
	return s.runMu.Unlock
}

// Snapshot returns a deep copy of the context including the
// user_clarifications map.
func (s *State) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.CloneMap(s.contextLocked())
}

// View returns the snapshot handed to agents: the context plus the ordered
// clarification history.
func (s *State) View() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := core.CloneMap(s.contextLocked())
	if len(s.clarifications) > 0 {
		v[core.KeyClarificationHistory] = slices.Clone(s.clarifications)
	}

	return v
}

// Ask records a clarification question from agentID. A repeat of the
// agent's still unanswered question is not recorded twice.
func (s *State) Ask(agentID, question, suggested string) core.Clarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.askLocked(agentID, question, suggested)
}

// Answer stores the user's answer for agentID, closing the agent's open
// question if there is one. It reports false, changing nothing, when the
// agent has no open question and already holds the identical answer.
func (s *State) Answer(agentID, answer string) (core.Clarification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	i := s.openLocked(agentID)

	if i < 0 {
		if prev, ok := s.answers[agentID]; ok && prev == answer {
			return core.Clarification{AgentID: agentID, Answer: answer}, false
		}

		question := "(previous question)"
		if data, ok := s.ctx[agentID].(map[string]any); ok {
			if q := core.StringValue(data, core.KeyClarificationQuestion); q != "" {
				question = q
			}
		}
		s.clarifications = append(s.clarifications, core.Clarification{AgentID: agentID, Question: question, AskedAt: now})
		i = len(s.clarifications) - 1
	}

	s.clarifications[i].Answer = answer
	s.clarifications[i].AnsweredAt = now
	s.answers[agentID] = answer
	s.updatedAt = now

	return s.clarifications[i], true
}

// Clarifications returns the ordered clarification records.
func (s *State) Clarifications() []core.Clarification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.clarifications)
}

// PendingQuestion returns the open question of agentID, if any.
func (s *State) PendingQuestion(agentID string) (core.Clarification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.openLocked(agentID); i >= 0 {
		return s.clarifications[i], true
	}

	return core.Clarification{}, false
}

// RecordFault counts an aborted agent branch.
func (s *State) RecordFault() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults++
}

// Faults returns the number of aborted agent branches.
func (s *State) Faults() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults
}

// Record is a serialisable point-in-time copy of a session.
type Record struct {
	ID             string               `json:"id"`
	Status         Status               `json:"status"`
	Input          map[string]any       `json:"input"`
	Context        map[string]any       `json:"context"`
	Clarifications []core.Clarification `json:"clarifications"`
	Faults         int                  `json:"faults"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Export returns a Record of the session.
func (s *State) Export() Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Record{
		ID:             s.ID,
		Status:         s.status,
		Input:          core.CloneMap(s.Input),
		Context:        core.CloneMap(s.contextLocked()),
		Clarifications: slices.Clone(s.clarifications),
		Faults:         s.faults,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.updatedAt,
	}
}

func (s *State) contextLocked() map[string]any {
	if len(s.answers) == 0 {
		delete(s.ctx, core.KeyUserClarifications)
		return s.ctx
	}

	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.ctx[core.KeyUserClarifications] = answers

	return s.ctx
}

func (s *State) mergeLocked(agentID string, data map[string]any) {
	s.ctx[agentID] = core.CloneMap(data)
	s.updatedAt = time.Now().UTC()
}

func (s *State) setStatusLocked(st Status) bool {
	if s.status == StatusTerminated {
		return false
	}

	s.status = st
	s.updatedAt = time.Now().UTC()

	return true
}

func (s *State) askLocked(agentID, question, suggested string) core.Clarification {
	if i := s.openLocked(agentID); i >= 0 && s.clarifications[i].Question == question {
		return s.clarifications[i]
	}

	c := core.Clarification{
		AgentID:         agentID,
		Question:        question,
		SuggestedAnswer: suggested,
		AskedAt:         time.Now().UTC(),
	}
	s.clarifications = append(s.clarifications, c)
	s.updatedAt = c.AskedAt

	return c
}

// openLocked returns the index of agentID's latest unanswered record or -1.
func (s *State) openLocked(agentID string) int {
	for i := len(s.clarifications) - 1; i >= 0; i-- {
		c := s.clarifications[i]
		if c.AgentID != agentID {
			continue
		}
		if c.Answered() {
			return -1
		}
		return i
	}

	return -1
}
