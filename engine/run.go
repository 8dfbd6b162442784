package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/crucible/admin"
	"github.com/hupe1980/crucible/agent"
	"github.com/hupe1980/crucible/audit"
	"github.com/hupe1980/crucible/broadcast"
	"github.com/hupe1980/crucible/bus"
	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/session"
)

const defaultClarificationQuestion = "Additional information required."

// run is one pass over a session: a fresh bus and Administrator and the
// work queue of events waiting to be published.
type run struct {
	eng    *Engine
	st     *session.State
	bus    *bus.Bus
	admin  *admin.Administrator
	logger logging.Logger

	mu    sync.Mutex
	queue []core.Event
}

func newRun(e *Engine, st *session.State) *run {
	logger := logging.With(e.opts.Logger, "component", "dispatch", "session_id", st.ID)

	var adminOpts []func(o *admin.Options)
	if e.opts.Admin != nil {
		adminOpts = append(adminOpts, e.opts.Admin)
	}

	r := &run{
		eng:    e,
		st:     st,
		bus:    bus.New(func(o *bus.Options) { o.Logger = logger }),
		admin:  admin.New(adminOpts...),
		logger: logger,
	}

	r.bus.SubscribeAll(r.dispatch)

	if m := e.opts.Metrics; m != nil {
		r.bus.SubscribeAll(func(_ context.Context, ev core.Event) error {
			m.Event(ev.Topic)
			return nil
		})
	}

	return r
}

// start publishes the seed event and drains the work queue until it is
// empty or the session reached a final status.
func (r *run) start(ctx context.Context) {
	r.enqueue(core.NewEvent(r.eng.opts.SeedTopic, core.SystemSender, core.CloneMap(r.st.Input), 0))

	for {
		if r.final() {
			r.logger.Debug("run halted", "status", string(r.st.Status()))
			return
		}

		ev, ok := r.next()
		if !ok {
			return
		}

		if err := r.bus.Publish(ctx, ev); err != nil {
			r.logger.Error("dispatch failed", "topic", ev.Topic, "error", err)
		}
	}
}

func (r *run) final() bool {
	status := r.st.Status()
	return status == session.StatusCompleted || status == session.StatusTerminated
}

func (r *run) enqueue(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue = append(r.queue, ev)
}

func (r *run) next() (core.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) == 0 {
		return core.Event{}, false
	}

	ev := r.queue[0]
	r.queue = r.queue[1:]

	return ev, true
}

// dispatch is the bus handler. All reacting agents see the same snapshot
// of the context taken before any of them runs.
func (r *run) dispatch(ctx context.Context, ev core.Event) error {
	r.eng.opts.Audit.Event(ctx, r.st.ID, ev)

	view := r.st.View()

	var wg sync.WaitGroup

	for _, a := range r.eng.registry.Agents() {
		if r.st.Terminated() {
			r.logger.Debug("dispatch aborted", "topic", ev.Topic)
			break
		}

		if !r.react(a, ev, view) {
			continue
		}

		wg.Add(1)

		go func(a agent.Agent) {
			defer wg.Done()
			r.branch(ctx, ev, a, core.CloneMap(view))
		}(a)
	}

	wg.Wait()

	return nil
}

func (r *run) react(a agent.Agent, ev core.Event, view map[string]any) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("react panicked", "agent", a.Descriptor().ID, "panic", rec)
			ok = false
		}
	}()

	return a.React(ev, view)
}

// outcome is what a branch decided under the session mutex.
type outcome struct {
	aborted   bool
	snapshot  map[string]any
	clarify   *core.Clarification
	safety    safetyVerdict
	next      core.Event
	directive admin.Directive
	final     map[string]any
}

// branch runs one agent for ev and acts on its result.
func (r *run) branch(ctx context.Context, ev core.Event, a agent.Agent, view map[string]any) {
	desc := a.Descriptor()
	sid := r.st.ID

	if r.st.Terminated() {
		r.logger.Debug("branch skipped", "agent", desc.ID, "topic", ev.Topic)
		return
	}

	if err := r.eng.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeAgent, &CallbackContext{
		SessionID: sid,
		Event:     &ev,
		AgentID:   desc.ID,
	}); err != nil {
		r.logger.Info("agent vetoed", "agent", desc.ID, "reason", err)
		return
	}

	r.eng.opts.Audit.AgentExecution(ctx, sid, desc.ID, audit.PhaseStart, audit.Execution{Input: r.st.Input})
	r.eng.chat(ctx, sid, fmt.Sprintf("%s reacting to %s...", desc.Name, ev.Topic), broadcast.SenderSystem, broadcast.VariantSystem, "")
	r.eng.opts.Broadcaster.Broadcast(ctx, broadcast.AgentUpdate(sid, desc.ID, broadcast.StatusRunning, nil))

	start := time.Now()
	out, err := r.execute(a, view)
	elapsed := time.Since(start)

	if err == nil {
		out, err = checkOutput(desc.ID, out)
	}
	if err != nil {
		r.fault(ctx, ev, desc, elapsed, err)
		return
	}

	logging.AgentRun(r.logger, desc.ID, string(out.Status), elapsed, nil)
	r.eng.opts.Audit.AgentExecution(ctx, sid, desc.ID, audit.PhaseComplete, audit.Execution{Output: out.Data, Duration: elapsed})
	_ = r.eng.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterAgent, &CallbackContext{
		SessionID: sid,
		Event:     &ev,
		AgentID:   desc.ID,
		Output:    out,
		Duration:  elapsed,
	})

	var res outcome
	r.st.WithLock(func(l session.Locked) {
		res = r.settle(l, desc, out)
	})

	if res.aborted {
		r.logger.Debug("result discarded", "agent", desc.ID, "status", string(r.st.Status()))
		return
	}

	r.eng.chat(ctx, sid, r.summarize(a, out.Data), desc.Name, broadcast.VariantAgent, desc.ID)
	r.eng.opts.Audit.ContextSnapshot(ctx, sid, desc.ID, "after_"+desc.ID, res.snapshot)

	switch {
	case res.clarify != nil:
		r.pauseForClarification(ctx, a, *res.clarify, out)
		return
	case res.safety == safetyStop:
		r.pauseForSafety(ctx, ev, desc, out)
		return
	case res.safety == safetyOverride:
		r.eng.chat(ctx, sid, "Safety Override: Clinical Context confirmed.", broadcast.SenderSupervisor, broadcast.VariantConsultant, "")
	}

	r.apply(ctx, desc, res)
}

// execute calls the agent with the session's cancellation context and the
// shared execution budget.
func (r *run) execute(a agent.Agent, view map[string]any) (out *core.AgentOutput, err error) {
	ctx := r.st.Done()

	if sem := r.eng.sem; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrAgentPanic, rec)
		}
	}()

	return a.Execute(ctx, core.CloneMap(r.st.Input), view)
}

// checkOutput fills an empty agent id and rejects a foreign one.
func checkOutput(agentID string, out *core.AgentOutput) (*core.AgentOutput, error) {
	if out == nil {
		return nil, fmt.Errorf("agent %s returned no output", agentID)
	}

	switch out.AgentID {
	case agentID:
		return out, nil
	case "":
		filled := *out
		filled.AgentID = agentID
		return &filled, nil
	default:
		return nil, fmt.Errorf("%w: %s answered as %s", ErrOutputMismatch, agentID, out.AgentID)
	}
}

func (r *run) fault(ctx context.Context, ev core.Event, desc agent.Descriptor, elapsed time.Duration, err error) {
	if r.st.Terminated() {
		r.logger.Debug("execution stopped by termination", "agent", desc.ID, "error", err)
		return
	}

	logging.AgentRun(logging.With(r.logger, "topic", ev.Topic), desc.ID, string(core.StatusError), elapsed, err)
	r.st.RecordFault()

	sid := r.st.ID
	r.eng.opts.Audit.AgentExecution(ctx, sid, desc.ID, audit.PhaseError, audit.Execution{Input: r.st.Input, Duration: elapsed, Err: err})
	r.eng.opts.Broadcaster.Broadcast(ctx, broadcast.AgentUpdate(sid, desc.ID, broadcast.StatusError, map[string]any{"error": err.Error()}))

	_ = r.eng.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{
		SessionID: sid,
		Event:     &ev,
		AgentID:   desc.ID,
		Duration:  elapsed,
		Err:       err,
	})
}

// settle runs under the session mutex: it merges the result and decides
// what happens next.
//
// A clarification request or a safety stop sets the session to paused.
// Paused is still a live session: it is neither completed nor terminated,
// other branches keep running and SubmitClarification resumes it. Callers
// that expect a waiting session to stay "running" should check for "not
// final" instead.
func (r *run) settle(l session.Locked, desc agent.Descriptor, out *core.AgentOutput) outcome {
	if l.Done() {
		return outcome{aborted: true}
	}

	l.Merge(desc.ID, out.Data)

	res := outcome{snapshot: core.CloneMap(l.Context())}

	if out.WantsClarification() {
		question := out.ClarificationQuestion
		if question == "" {
			question = defaultClarificationQuestion
		}

		c := l.Ask(desc.ID, question, out.SuggestedAnswer)
		l.SetStatus(session.StatusPaused)
		res.clarify = &c

		return res
	}

	safety := r.eng.opts.Safety
	topic := r.eng.opts.Topics.Resolve(desc.ID)

	switch res.safety = safety.check(desc.ID, out.Data, l.Context()); res.safety {
	case safetyOverride:
		topic = safety.ClearedTopic
	case safetyStop:
		l.Ask(desc.ID, safety.Question, "")
		l.SetStatus(session.StatusPaused)
		return res
	}

	res.next = core.NewEvent(topic, desc.ID, core.CloneMap(out.Data), desc.Priority)
	res.directive = r.admin.Monitor(res.next, l.Context())

	if res.directive.Kind == admin.Stop {
		l.SetStatus(session.StatusCompleted)
		res.final = core.CloneMap(l.Context())
	}

	return res
}

// apply acts on the administrator's directive for the branch's event.
func (r *run) apply(ctx context.Context, desc agent.Descriptor, res outcome) {
	sid := r.st.ID
	d := res.directive

	r.eng.opts.Audit.AdministratorDecision(ctx, sid, desc.ID, d)
	_ = r.eng.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnDirective, &CallbackContext{
		SessionID: sid,
		Event:     &res.next,
		AgentID:   desc.ID,
		Directive: &d,
	})

	switch d.Kind {
	case admin.Stop:
		r.logger.Info("run completed", "agent", desc.ID, "reason", d.Reason)
		r.eng.opts.Audit.Workflow(ctx, sid, audit.WorkflowComplete, map[string]any{"reason": "administrator_stop"})
		r.eng.opts.Broadcaster.Broadcast(ctx, broadcast.WorkflowComplete(sid, res.final))
		r.eng.stateChanged(ctx, sid, session.StatusCompleted)
	case admin.Pause:
		r.logger.Warn("administrator pause", "agent", desc.ID, "reason", d.Reason)
		r.eng.chat(ctx, sid, "**ADMIN PAUSE**: "+d.Reason, broadcast.SenderAdministrator, broadcast.VariantSystem, "")
	case admin.Resolved:
		r.eng.chat(ctx, sid, fmt.Sprintf("**ADMIN RULING**: %s. Target: *%s*.", d.Reason, d.WinnerID),
			broadcast.SenderAdministrator, broadcast.VariantConsultant, "")

		if d.WinnerID != desc.ID {
			r.eng.chat(ctx, sid, fmt.Sprintf("Agent *%s* silenced by Administrator.", desc.Name),
				broadcast.SenderSystem, broadcast.VariantSystem, "")
			return
		}

		r.enqueue(res.next)
	default:
		r.enqueue(res.next)
	}
}

func (r *run) pauseForClarification(ctx context.Context, a agent.Agent, c core.Clarification, out *core.AgentOutput) {
	sid := r.st.ID

	suggested := c.SuggestedAnswer
	if r.eng.opts.Config.ConsultOnPause {
		if answer, ok := r.consult(ctx, a.Descriptor().ID, c.Question); ok && suggested == "" {
			suggested = answer
		}
	}

	r.logger.Info("clarification requested", "agent", c.AgentID, "question", c.Question)
	r.eng.opts.Audit.Clarification(ctx, sid, c, "")
	r.eng.opts.Broadcaster.Broadcast(ctx, broadcast.WorkflowPause(sid, broadcast.PauseInfo{
		Reason:          "Clarification Requested",
		AgentID:         c.AgentID,
		Question:        c.Question,
		SuggestedAnswer: suggested,
		Data:            out.Data,
	}))
	r.eng.stateChanged(ctx, sid, session.StatusPaused)
}

// consult asks the other agents, in registry order, for an answer to a
// peer's question. The first answer is announced and returned.
func (r *run) consult(ctx context.Context, askerID, question string) (string, bool) {
	view := r.st.View()

	for _, peer := range r.eng.registry.Agents() {
		desc := peer.Descriptor()
		if desc.ID == askerID {
			continue
		}

		answer, ok := r.ask(peer, question, view)
		if !ok || answer == "" {
			continue
		}

		r.logger.Debug("consult answered", "agent", desc.ID, "asker", askerID)
		r.eng.chat(ctx, r.st.ID, fmt.Sprintf("**CONSULT** (%s): %s", desc.Name, answer),
			desc.Name, broadcast.VariantConsultant, desc.ID)

		return answer, true
	}

	return "", false
}

func (r *run) ask(peer agent.Agent, question string, view map[string]any) (answer string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("consult panicked", "agent", peer.Descriptor().ID, "panic", rec)
			answer, ok = "", false
		}
	}()

	return peer.Consult(r.st.Done(), question, core.CloneMap(r.st.Input), view)
}

func (r *run) pauseForSafety(ctx context.Context, ev core.Event, desc agent.Descriptor, out *core.AgentOutput) {
	sid := r.st.ID
	safety := r.eng.opts.Safety
	trigger := safety.triggeringAgent(ev.SenderID)

	r.logger.Warn("safety stop", "agent", desc.ID, "triggering_agent", trigger)

	r.eng.opts.Audit.Clarification(ctx, sid, core.Clarification{
		AgentID:  desc.ID,
		Question: safety.Question,
		AskedAt:  time.Now().UTC(),
	}, trigger)
	r.eng.opts.Broadcaster.Broadcast(ctx, broadcast.WorkflowPause(sid, broadcast.PauseInfo{
		Reason:            safety.Reason,
		AgentID:           desc.ID,
		Question:          safety.Question,
		TriggeringAgentID: trigger,
		Data:              out.Data,
	}))
	r.eng.stateChanged(ctx, sid, session.StatusPaused)
}

func (r *run) summarize(a agent.Agent, data map[string]any) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = agent.DefaultSummary(a.Descriptor().ID, data)
		}
	}()

	return a.Summarize(data)
}
