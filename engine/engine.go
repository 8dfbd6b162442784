package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/crucible/admin"
	"github.com/hupe1980/crucible/agent"
	"github.com/hupe1980/crucible/audit"
	"github.com/hupe1980/crucible/broadcast"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/metrics"
	"github.com/hupe1980/crucible/session"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("engine: session not found")

	// ErrInvalidClarification is returned for an empty agent id or answer.
	ErrInvalidClarification = errors.New("engine: invalid clarification")

	// ErrSessionTerminated is returned when a terminated session is resumed.
	ErrSessionTerminated = errors.New("engine: session terminated")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("engine: closed")

	// ErrAgentPanic wraps a panic recovered from an agent execution.
	ErrAgentPanic = errors.New("engine: agent panicked")

	// ErrOutputMismatch is returned when an agent answers under a foreign id.
	ErrOutputMismatch = errors.New("engine: output agent id mismatch")
)

// Config defines tuning parameters for the Engine's operational behavior.
//
// Example:
//
//	cfg := Config{
//	    MaxConcurrentExecutions: 4,
//	    ConsultOnPause:          false,
//	}
type Config struct {
	// MaxConcurrentExecutions limits the number of agent executions running
	// at once across all sessions. It bounds concurrent model calls and
	// provides backpressure. Set to 0 for unlimited.
	MaxConcurrentExecutions int

	// ConsultOnPause asks the other agents for a suggested answer before a
	// clarification pause is announced. The first answer wins and is
	// broadcast as a consultant message.
	ConsultOnPause bool
}

// DefaultConfig provides the default configuration values:
//   - MaxConcurrentExecutions: 10
//   - ConsultOnPause: true
var DefaultConfig = Config{
	MaxConcurrentExecutions: 10,
	ConsultOnPause:          true,
}

// Options configures an Engine instance using the functional options pattern.
//
// Every collaborator has a default so that an Engine built from a registry
// alone is usable in tests: an in-memory store, a discarding broadcaster,
// an audit logger without sink and no metrics.
//
// Example:
//
//	eng := engine.New(team, func(o *engine.Options) {
//	    o.Topics = clinical.Topics()
//	    o.Broadcaster = hub
//	    o.Audit = audit.New(audit.NewFileSink("logs"))
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Topics maps agent ids to their outbound topics. Agents missing from
	// the table publish UnknownTopic.
	Topics TopicTable

	// SeedTopic is the topic of the event that starts every run.
	SeedTopic string

	// Safety configures the safety override. Defaults to
	// DefaultSafetyOptions.
	Safety SafetyOptions

	// Admin is applied to the Administrator created for every run.
	Admin func(o *admin.Options)

	// Store keeps the live sessions. Defaults to an in-memory store.
	Store session.Store

	// Archive persists final session records. Nil disables archiving.
	Archive session.Archiver

	// Broadcaster receives every outbound notification.
	Broadcaster broadcast.Broadcaster

	// Audit records the audit trail. Defaults to a logger without sink.
	Audit *audit.Logger

	// Metrics is optional. When set, the engine registers MetricsCallbacks
	// and counts published events.
	Metrics *metrics.Metrics

	// Callbacks receives lifecycle hooks.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine orchestrates the runs of one agent registry.
//
// Core Responsibilities:
//   - Session Lifecycle: Create, resume, terminate and remove sessions
//   - Run Scheduling: One bus and one Administrator per run, fed by a FIFO
//     work queue that is drained until empty or the session is final
//   - Dispatch: Concurrent agent branches per event over one context snapshot
//   - Collaborators: Broadcasts, audit entries, metrics and callbacks
//
// Concurrency Model:
//   - Runs of one session are serialised; sessions run independently
//   - Branches of one event run concurrently; merges, administrator rulings
//     and status flags are applied under the session mutex
//   - Agent executions share a semaphore of MaxConcurrentExecutions
//   - Termination cancels the context every agent execution derives from
//
// Error Handling:
//   - A faulting agent (error or panic) aborts its own branch only
//   - Collaborator failures (audit sink, broadcaster) are logged and ignored
//   - Unknown ids return ErrSessionNotFound without side effects
//
// Example Usage:
//
//	team, _ := clinical.Team(llm)
//	eng := engine.New(team, func(o *engine.Options) {
//	    o.Topics = clinical.Topics()
//	})
//	defer eng.Close()
//
//	id, err := eng.StartRun(ctx, map[string]any{"transcript": text})
//	if err != nil {
//	    return err
//	}
//	_ = eng.Wait(id)
//
//	rec, _ := eng.Snapshot(id)
//	fmt.Println(rec.Status)
type Engine struct {
	registry *agent.Registry
	opts     Options
	sem      *semaphore.Weighted
	logger   logging.Logger

	// Run tracking - protected by mu
	mu     sync.Mutex
	cond   *sync.Cond
	active map[string]int
	closed bool
	wg     sync.WaitGroup
}

// New creates an Engine for the agents of registry.
//
// The registry must be fully populated; the engine iterates it in
// registration order for every event and never modifies it.
func New(registry *agent.Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:    DefaultConfig,
		Topics:    TopicTable{},
		SeedTopic: DefaultSeedTopic,
		Safety:    DefaultSafetyOptions(),
		Store:     session.NewInMemoryStore(),
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = broadcast.Discard
	}
	if opts.Audit == nil {
		opts.Audit = audit.New(nil, func(o *audit.Options) { o.Logger = opts.Logger })
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.SeedTopic == "" {
		opts.SeedTopic = DefaultSeedTopic
	}
	if opts.Topics == nil {
		opts.Topics = TopicTable{}
	}

	if opts.Metrics != nil {
		for _, cb := range MetricsCallbacks(opts.Metrics) {
			opts.Callbacks.RegisterCallback(cb)
		}
	}

	e := &Engine{
		registry: registry,
		opts:     opts,
		logger:   logging.With(opts.Logger, "component", "engine"),
		active:   make(map[string]int),
	}
	e.cond = sync.NewCond(&e.mu)

	if n := opts.Config.MaxConcurrentExecutions; n > 0 {
		e.sem = semaphore.NewWeighted(int64(n))
	}

	return e
}

// StartRun creates a session for input, announces it and starts its run in
// the background. It returns the new session id once the run is scheduled.
//
// The run outlives ctx; use Terminate to stop it. Wait blocks until it
// has drained.
func (e *Engine) StartRun(ctx context.Context, input map[string]any) (string, error) {
	if e.isClosed() {
		return "", ErrClosed
	}

	st, err := e.opts.Store.Create(input)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	e.opts.Metrics.SessionOpened()
	e.logger.Info("session created", "session_id", st.ID)

	e.opts.Audit.Workflow(ctx, st.ID, audit.WorkflowStart, map[string]any{"input_keys": inputKeys(input)})
	e.opts.Broadcaster.Broadcast(ctx, broadcast.WorkflowStart(st.ID, "Agent Mesh Activated"))
	e.stateChanged(ctx, st.ID, session.StatusRunning)

	if err := e.launch(ctx, st); err != nil {
		return "", err
	}

	return st.ID, nil
}

// Run executes a session synchronously and returns its final record.
//
// Cancelling ctx terminates the session: in-flight executions observe the
// cancellation and nothing further is published. The returned error is then
// ctx.Err(); the record reflects the terminated session.
func (e *Engine) Run(ctx context.Context, input map[string]any) (session.Record, error) {
	id, err := e.StartRun(ctx, input)
	if err != nil {
		return session.Record{}, err
	}

	stop := context.AfterFunc(ctx, func() {
		if err := e.Terminate(context.WithoutCancel(ctx), id); err != nil {
			e.logger.Warn("terminate on cancel failed", "session_id", id, "error", err)
		}
	})
	defer stop()

	if err := e.Wait(id); err != nil {
		return session.Record{}, err
	}

	rec, err := e.Snapshot(id)
	if err != nil {
		return session.Record{}, err
	}

	return rec, ctx.Err()
}

// SubmitClarification records the user's answer for agentID and replays the
// session's run from the seed event with a fresh bus and Administrator.
//
// Submitting the identical answer again for an already answered agent is a
// no-op. The replay runs in the background; use Wait to join it.
func (e *Engine) SubmitClarification(ctx context.Context, id, agentID, answer string) error {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" || strings.TrimSpace(answer) == "" {
		return ErrInvalidClarification
	}

	st, err := e.session(id)
	if err != nil {
		return err
	}

	if st.Terminated() {
		return fmt.Errorf("%w: %s", ErrSessionTerminated, id)
	}

	c, changed := st.Answer(agentID, answer)
	if !changed {
		e.logger.Debug("duplicate clarification ignored", "session_id", id, "agent", agentID)
		return nil
	}

	e.opts.Audit.Clarification(ctx, id, c, "")
	e.opts.Broadcaster.Broadcast(ctx, broadcast.Chat(id, answer, broadcast.SenderUser, broadcast.VariantUser, ""))

	if st.SetStatus(session.StatusRunning) {
		e.stateChanged(ctx, id, session.StatusRunning)
	}

	e.opts.Audit.Workflow(ctx, id, audit.WorkflowResume, map[string]any{"agent_id": agentID})
	e.logger.Info("session resumed", "session_id", id, "agent", agentID)

	return e.launch(ctx, st)
}

// Terminate hard-stops a session. It is idempotent: terminating a
// terminated session returns nil and changes nothing.
func (e *Engine) Terminate(ctx context.Context, id string) error {
	st, err := e.session(id)
	if err != nil {
		return err
	}

	if !st.Terminate() {
		return nil
	}

	e.logger.Warn("session terminated", "session_id", id)

	e.opts.Broadcaster.Broadcast(ctx, broadcast.Chat(id,
		"**NETWORK TERMINATED**: Administrator has issued a hard-kill signal. All process threads halted.",
		broadcast.SenderSystem, broadcast.VariantSystem, ""))
	e.opts.Broadcaster.Broadcast(ctx, broadcast.WorkflowTerminated(id, "user_kill_switch"))
	e.opts.Audit.Workflow(ctx, id, audit.WorkflowTerminated, map[string]any{"reason": "user_kill_switch"})
	e.stateChanged(ctx, id, session.StatusTerminated)
	e.archive(ctx, st)

	return nil
}

// Wait blocks until no run of the session is scheduled or executing.
func (e *Engine) Wait(id string) error {
	if _, err := e.session(id); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for e.active[id] > 0 {
		e.cond.Wait()
	}

	return nil
}

// Snapshot returns a point-in-time record of the session.
func (e *Engine) Snapshot(id string) (session.Record, error) {
	st, err := e.session(id)
	if err != nil {
		return session.Record{}, err
	}

	return st.Export(), nil
}

// Sessions returns the ids of all live sessions.
func (e *Engine) Sessions() []string {
	return e.opts.Store.List()
}

// Remove stops a session without announcing it, archives its final record
// and forgets it.
func (e *Engine) Remove(ctx context.Context, id string) error {
	st, err := e.session(id)
	if err != nil {
		return err
	}

	st.Terminate()

	if err := e.Wait(id); err != nil {
		return err
	}

	e.archive(ctx, st)

	if err := e.opts.Store.Delete(id); err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}

	e.opts.Audit.Forget(id)
	e.opts.Metrics.SessionClosed()

	return nil
}

// Close rejects new runs and waits for the scheduled ones to drain. It
// does not terminate live sessions.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Engine) session(id string) (*session.State, error) {
	st, err := e.opts.Store.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}

	return st, nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}

// launch schedules a run of st on its own goroutine.
func (e *Engine) launch(ctx context.Context, st *session.State) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.active[st.ID]++
	e.wg.Add(1)
	e.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer e.finish(st.ID)
		e.execute(runCtx, st)
	}()

	return nil
}

func (e *Engine) finish(id string) {
	e.mu.Lock()
	e.active[id]--
	if e.active[id] <= 0 {
		delete(e.active, id)
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	e.wg.Done()
}

// execute performs one run of st. Runs of a session never overlap.
func (e *Engine) execute(ctx context.Context, st *session.State) {
	release := st.BeginRun()
	defer release()

	if st.Terminated() {
		return
	}

	r := newRun(e, st)
	r.start(ctx)

	if st.Status() == session.StatusCompleted {
		e.archive(ctx, st)
	}
}

func (e *Engine) archive(ctx context.Context, st *session.State) {
	if e.opts.Archive == nil {
		return
	}

	version, err := e.opts.Archive.Save(ctx, st.Export())
	if err != nil {
		e.logger.Error("archive failed", "session_id", st.ID, "error", err)
		return
	}

	e.logger.Debug("session archived", "session_id", st.ID, "version", version)
}

func (e *Engine) stateChanged(ctx context.Context, id string, status session.Status) {
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, &CallbackContext{
		SessionID: id,
		Status:    status,
	}); err != nil {
		e.logger.Warn("state change callback failed", "session_id", id, "error", err)
	}
}

func (e *Engine) chat(ctx context.Context, id, text, sender, variant, agentID string) {
	e.opts.Broadcaster.Broadcast(ctx, broadcast.Chat(id, text, sender, variant, agentID))
}

func inputKeys(input map[string]any) []string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
