package engine

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crucible/admin"
	"github.com/hupe1980/crucible/agent"
	"github.com/hupe1980/crucible/audit"
	"github.com/hupe1980/crucible/broadcast"
	"github.com/hupe1980/crucible/core"
	fixtures "github.com/hupe1980/crucible/internal/testutil"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/metrics"
	"github.com/hupe1980/crucible/session"
)

type execFunc func(ctx context.Context, input, view map[string]any) (*core.AgentOutput, error)

type stub struct {
	agent.BaseAgent
	exec    execFunc
	consult func(question string) (string, bool)

	calls atomic.Int32
	mu    sync.Mutex
	views []map[string]any
}

func newStub(id string, priority int, listen []string, exec execFunc) *stub {
	return &stub{
		BaseAgent: agent.NewBaseAgent(agent.Descriptor{ID: id, Priority: priority, ListenFor: listen}),
		exec:      exec,
	}
}

func (s *stub) Execute(ctx context.Context, input, view map[string]any) (*core.AgentOutput, error) {
	s.calls.Add(1)

	s.mu.Lock()
	s.views = append(s.views, view)
	s.mu.Unlock()

	return s.exec(ctx, input, view)
}

func (s *stub) Consult(_ context.Context, question string, _, _ map[string]any) (string, bool) {
	if s.consult == nil {
		return "", false
	}
	return s.consult(question)
}

func (s *stub) lastView() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[len(s.views)-1]
}

func emit(id string, data map[string]any) execFunc {
	return func(context.Context, map[string]any, map[string]any) (*core.AgentOutput, error) {
		return core.NewOutput(id, core.StatusCompleted, 1, core.CloneMap(data), ""), nil
	}
}

type harness struct {
	eng  *Engine
	rec  *broadcast.Recorder
	sink *audit.MemorySink
}

func newHarness(t *testing.T, topics TopicTable, agents []agent.Agent, optFns ...func(o *Options)) *harness {
	t.Helper()

	reg, err := agent.NewRegistry(agents...)
	require.NoError(t, err)

	h := &harness{rec: broadcast.NewRecorder(), sink: audit.NewMemorySink()}

	fns := []func(o *Options){func(o *Options) {
		o.Topics = topics
		o.SeedTopic = "START"
		o.Broadcaster = h.rec
		o.Audit = audit.New(h.sink)
	}}
	h.eng = New(reg, append(fns, optFns...)...)
	t.Cleanup(h.eng.Close)

	return h
}

func TestRun_ContinueRepublishes(t *testing.T) {
	a := newStub("a", 5, []string{"START"}, emit("a", map[string]any{"v": 1.0}))
	b := newStub("b", 1, []string{"NEXT"}, emit("b", nil))

	h := newHarness(t, TopicTable{"a": "NEXT"}, []agent.Agent{a, b})

	rec, err := h.eng.Run(context.Background(), map[string]any{"transcript": "x"})
	require.NoError(t, err)

	assert.Equal(t, session.StatusRunning, rec.Status)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Equal(t, map[string]any{"v": 1.0}, rec.Context["a"])
	assert.Contains(t, h.sink.EventTypes(rec.ID), "ADMINISTRATOR_CONTINUE")

	start := h.rec.OfType(broadcast.TypeWorkflowStart)
	require.Len(t, start, 1)
	assert.Equal(t, "Agent Mesh Activated", start[0].Message)
}

func TestRun_AuditTrailOrder(t *testing.T) {
	a := newStub("a", 5, []string{"START"}, emit("a", nil))
	h := newHarness(t, TopicTable{"a": "NEXT"}, []agent.Agent{a})

	rec, err := h.eng.Run(context.Background(), map[string]any{"transcript": "x"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		audit.WorkflowStart,
		"START",
		"AGENT_START",
		"AGENT_COMPLETE",
		"CONTEXT_SNAPSHOT",
		"ADMINISTRATOR_CONTINUE",
		"NEXT",
	}, h.sink.EventTypes(rec.ID))

	entries := h.sink.Entries(rec.ID)
	require.Len(t, entries, 7)
	assert.Equal(t, audit.LevelEvent, entries[1].Level)
	assert.Equal(t, audit.LevelEvent, entries[len(entries)-1].Level)

	texts := h.rec.Texts()
	assert.Contains(t, texts, "a reacting to START...")
}

func TestRun_LoopResolvedSilencesLoser(t *testing.T) {
	x := newStub("x", 3, []string{"START", "Y_DONE"}, emit("x", nil))
	y := newStub("y", 7, []string{"X_DONE"}, emit("y", nil))

	h := newHarness(t, TopicTable{"x": "X_DONE", "y": "Y_DONE"}, []agent.Agent{x, y})

	_, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	// x, y, x, y resolves for y which publishes once more; x is then silenced.
	assert.Equal(t, int32(3), x.calls.Load())
	assert.Equal(t, int32(2), y.calls.Load())

	texts := h.rec.Texts()
	rulings := 0
	for _, s := range texts {
		if s == "**ADMIN RULING**: "+admin.LoopRationale+". Target: *y*." {
			rulings++
		}
	}
	assert.Equal(t, 2, rulings)
	assert.Contains(t, texts, "Agent *x* silenced by Administrator.")
}

func TestRun_StopCompletesWithFullContext(t *testing.T) {
	mr := miniredis.RunT(t)
	archive := session.NewRedisArchive(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	a := newStub("a", 2, []string{"START"}, emit("a", map[string]any{"k": "va"}))
	b := newStub("b", 2, []string{"A_DONE"}, emit("b", map[string]any{"k": "vb"}))
	after := newStub("after", 1, []string{"DONE"}, emit("after", nil))

	h := newHarness(t, TopicTable{"a": "A_DONE", "b": "DONE"}, []agent.Agent{a, b, after}, func(o *Options) {
		o.Archive = archive
		o.Admin = func(ao *admin.Options) {
			ao.RequiredKeys = []string{"a", "b"}
			ao.TerminalTopic = "DONE"
		}
	})

	rec, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, session.StatusCompleted, rec.Status)
	assert.Equal(t, int32(0), after.calls.Load())

	complete := h.rec.OfType(broadcast.TypeWorkflowComplete)
	require.Len(t, complete, 1)
	data, ok := complete[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "va"}, data["a"])
	assert.Equal(t, map[string]any{"k": "vb"}, data["b"])

	types := h.sink.EventTypes(rec.ID)
	assert.Contains(t, types, "ADMINISTRATOR_STOP")
	assert.Contains(t, types, audit.WorkflowComplete)

	stored, version, err := archive.Load(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, session.StatusCompleted, stored.Status)
}

func TestRun_FanOutSeesSameSnapshot(t *testing.T) {
	p := newStub("p", 1, []string{"START"}, emit("p", map[string]any{"from": "p"}))
	q := newStub("q", 1, []string{"START"}, emit("q", map[string]any{"from": "q"}))

	h := newHarness(t, TopicTable{}, []agent.Agent{p, q})

	rec, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.NotContains(t, p.lastView(), "q")
	assert.NotContains(t, q.lastView(), "p")
	assert.Contains(t, rec.Context, "p")
	assert.Contains(t, rec.Context, "q")
}

func TestRun_FaultAbortsOnlyItsBranch(t *testing.T) {
	bad := newStub("bad", 1, []string{"START"}, func(context.Context, map[string]any, map[string]any) (*core.AgentOutput, error) {
		return nil, errors.New("boom")
	})
	panicky := newStub("panicky", 1, []string{"START"}, func(context.Context, map[string]any, map[string]any) (*core.AgentOutput, error) {
		panic("kaboom")
	})
	foreign := newStub("foreign", 1, []string{"START"}, emit("someone_else", nil))
	anonymous := newStub("anonymous", 1, []string{"START"}, emit("", map[string]any{"ok": true}))
	good := newStub("good", 1, []string{"START"}, emit("good", nil))
	downstream := newStub("downstream", 1, []string{"GOOD_DONE"}, emit("downstream", nil))

	h := newHarness(t, TopicTable{"good": "GOOD_DONE"}, []agent.Agent{bad, panicky, foreign, anonymous, good, downstream})

	rec, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Faults)
	assert.Equal(t, session.StatusRunning, rec.Status)
	assert.Equal(t, int32(1), downstream.calls.Load())
	assert.Equal(t, map[string]any{"ok": true}, rec.Context["anonymous"])
	assert.NotContains(t, rec.Context, "bad")
	assert.NotContains(t, rec.Context, "foreign")

	errored := map[string]bool{}
	for _, n := range h.rec.OfType(broadcast.TypeAgentUpdate) {
		if n.Status == broadcast.StatusError {
			errored[n.AgentID] = true
		}
	}
	assert.Equal(t, map[string]bool{"bad": true, "panicky": true, "foreign": true}, errored)

	n := 0
	for _, typ := range h.sink.EventTypes(rec.ID) {
		if typ == "AGENT_ERROR" {
			n++
		}
	}
	assert.Equal(t, 3, n)
}

func clarifyingMed(ctx context.Context, input, view map[string]any) (*core.AgentOutput, error) {
	if answer, ok := core.UserClarification(view, "med"); ok {
		return core.NewOutput("med", core.StatusCompleted, 1, map[string]any{"dose": answer}, ""), nil
	}

	return core.NewOutput("med", core.StatusCompleted, 0.5, map[string]any{
		core.KeyClarificationNeeded:   true,
		core.KeyClarificationQuestion: "dose?",
	}, ""), nil
}

func TestRun_ClarificationPausesBranch(t *testing.T) {
	med := newStub("med", 5, []string{"START"}, clarifyingMed)
	next := newStub("next", 1, []string{"MED_DONE"}, emit("next", nil))

	h := newHarness(t, TopicTable{"med": "MED_DONE"}, []agent.Agent{med, next})

	rec, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, session.StatusPaused, rec.Status)
	assert.NotEqual(t, session.StatusCompleted, rec.Status)
	assert.Equal(t, int32(0), next.calls.Load())

	pauses := h.rec.OfType(broadcast.TypeWorkflowPause)
	require.Len(t, pauses, 1)
	assert.Equal(t, "Clarification Requested", pauses[0].Reason)
	assert.Equal(t, "dose?", pauses[0].Question)
	assert.Equal(t, "med", pauses[0].AgentID)

	require.Len(t, rec.Clarifications, 1)
	assert.Equal(t, "dose?", rec.Clarifications[0].Question)
	assert.False(t, rec.Clarifications[0].Answered())
	assert.Contains(t, h.sink.EventTypes(rec.ID), "CLARIFICATION_REQUEST")
}

func TestSubmitClarification_ResumesAndIsIdempotent(t *testing.T) {
	med := newStub("med", 5, []string{"START"}, clarifyingMed)
	next := newStub("next", 1, []string{"MED_DONE"}, emit("next", nil))

	h := newHarness(t, TopicTable{"med": "MED_DONE"}, []agent.Agent{med, next})
	ctx := context.Background()

	rec, err := h.eng.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, session.StatusPaused, rec.Status)

	require.NoError(t, h.eng.SubmitClarification(ctx, rec.ID, "med", "10 mg"))
	require.NoError(t, h.eng.Wait(rec.ID))

	rec, err = h.eng.Snapshot(rec.ID)
	require.NoError(t, err)

	assert.Equal(t, session.StatusRunning, rec.Status)
	assert.Equal(t, int32(2), med.calls.Load())
	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, map[string]any{"dose": "10 mg"}, rec.Context["med"])
	assert.Equal(t, map[string]string{"med": "10 mg"}, rec.Context[core.KeyUserClarifications])
	require.Len(t, rec.Clarifications, 1)
	assert.Equal(t, "10 mg", rec.Clarifications[0].Answer)
	assert.Contains(t, h.rec.Texts(), "10 mg")
	assert.Contains(t, h.sink.EventTypes(rec.ID), "CLARIFICATION_RESPONSE")

	require.NoError(t, h.eng.SubmitClarification(ctx, rec.ID, "med", "10 mg"))
	require.NoError(t, h.eng.Wait(rec.ID))

	assert.Equal(t, int32(2), med.calls.Load())
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestSubmitClarification_Errors(t *testing.T) {
	med := newStub("med", 5, []string{"START"}, clarifyingMed)
	h := newHarness(t, TopicTable{}, []agent.Agent{med})
	ctx := context.Background()

	err := h.eng.SubmitClarification(ctx, "missing", "med", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	rec, err := h.eng.Run(ctx, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, h.eng.SubmitClarification(ctx, rec.ID, "", "x"), ErrInvalidClarification)
	assert.ErrorIs(t, h.eng.SubmitClarification(ctx, rec.ID, "med", "  "), ErrInvalidClarification)

	require.NoError(t, h.eng.Terminate(ctx, rec.ID))
	assert.ErrorIs(t, h.eng.SubmitClarification(ctx, rec.ID, "med", "x"), ErrSessionTerminated)
	assert.Equal(t, int32(1), med.calls.Load())
}

func TestRun_ConsultSuggestsAnswer(t *testing.T) {
	med := newStub("med", 5, []string{"START"}, clarifyingMed)
	pharm := newStub("pharm", 1, nil, emit("pharm", nil))
	pharm.consult = func(question string) (string, bool) {
		if question == "dose?" {
			return "10 mg", true
		}
		return "", false
	}

	h := newHarness(t, TopicTable{}, []agent.Agent{med, pharm})

	_, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	pauses := h.rec.OfType(broadcast.TypeWorkflowPause)
	require.Len(t, pauses, 1)
	assert.Equal(t, "10 mg", pauses[0].SuggestedAnswer)
	assert.Contains(t, h.rec.Texts(), "**CONSULT** (pharm): 10 mg")
}

func TestRun_ConsultDisabled(t *testing.T) {
	med := newStub("med", 5, []string{"START"}, clarifyingMed)
	pharm := newStub("pharm", 1, nil, emit("pharm", nil))
	pharm.consult = func(string) (string, bool) { return "10 mg", true }

	h := newHarness(t, TopicTable{}, []agent.Agent{med, pharm}, func(o *Options) {
		o.Config.ConsultOnPause = false
	})

	_, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	pauses := h.rec.OfType(broadcast.TypeWorkflowPause)
	require.Len(t, pauses, 1)
	assert.Empty(t, pauses[0].SuggestedAnswer)
}

func orientation(result string) *stub {
	return newStub("user_assist", 10, []string{"START"}, emit("user_assist", map[string]any{"validation_result": result}))
}

func riskySafety() *stub {
	return newStub("safety_triage", 100, []string{"ORIENTED"}, emit("safety_triage", map[string]any{core.KeyRiskDetected: true}))
}

func TestRun_SafetyOverrideWhenApproved(t *testing.T) {
	clinical := newStub("clinical", 9, []string{"SAFETY_CLEARED"}, emit("clinical", nil))

	h := newHarness(t, TopicTable{"user_assist": "ORIENTED", "safety_triage": "SAFETY_HOLD"},
		[]agent.Agent{riskySafety(), clinical, orientation("approved")})

	rec, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), clinical.calls.Load())
	assert.Empty(t, h.rec.OfType(broadcast.TypeWorkflowPause))

	var override *broadcast.Notification
	for _, n := range h.rec.OfType(broadcast.TypeChatMessage) {
		if n.Text == "Safety Override: Clinical Context confirmed." {
			override = &n
		}
	}
	require.NotNil(t, override)
	assert.Equal(t, broadcast.SenderSupervisor, override.Sender)
	assert.Equal(t, broadcast.VariantConsultant, override.Variant)
	assert.Equal(t, session.StatusRunning, rec.Status)
}

func TestRun_SafetyStopWithoutApproval(t *testing.T) {
	clinical := newStub("clinical", 9, []string{"SAFETY_CLEARED", "SAFETY_HOLD"}, emit("clinical", nil))

	h := newHarness(t, TopicTable{"user_assist": "ORIENTED", "safety_triage": "SAFETY_HOLD"},
		[]agent.Agent{riskySafety(), clinical, orientation("rejected")})

	rec, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int32(0), clinical.calls.Load())
	assert.Equal(t, session.StatusPaused, rec.Status)

	pauses := h.rec.OfType(broadcast.TypeWorkflowPause)
	require.Len(t, pauses, 1)
	assert.Equal(t, "SAFETY STOP", pauses[0].Reason)
	assert.Equal(t, "safety_triage", pauses[0].AgentID)
	assert.Equal(t, "user_assist", pauses[0].TriggeringAgentID)
	assert.Equal(t, "Safety Risk Detected. Verify?", pauses[0].Question)

	require.Len(t, rec.Clarifications, 1)
	assert.Equal(t, "safety_triage", rec.Clarifications[0].AgentID)
}

func TestSafetyOptions_TriggeringAgent(t *testing.T) {
	s := DefaultSafetyOptions()
	assert.Equal(t, "user_assist", s.triggeringAgent(core.SystemSender))
	assert.Equal(t, "clinical_entity", s.triggeringAgent("clinical_entity"))
}

func TestTerminatedSessionExecutesNothing(t *testing.T) {
	a := newStub("a", 1, []string{"START"}, emit("a", nil))
	h := newHarness(t, TopicTable{}, []agent.Agent{a})

	st := fixtures.NewSessionBuilder("dead").
		Input("transcript", "t").
		Merge("a", map[string]any{"seen": true}).
		Status(session.StatusTerminated).
		Build()

	r := newRun(h.eng, st)
	require.NoError(t, r.bus.Publish(context.Background(), core.NewEvent("START", core.SystemSender, nil, 1)))

	assert.Equal(t, int32(0), a.calls.Load())
}

func TestTerminate_CancelsInFlightExecution(t *testing.T) {
	started := make(chan struct{})
	slow := newStub("slow", 5, []string{"START"}, func(ctx context.Context, _, _ map[string]any) (*core.AgentOutput, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	after := newStub("after", 1, []string{"SLOW_DONE"}, emit("after", nil))

	h := newHarness(t, TopicTable{"slow": "SLOW_DONE"}, []agent.Agent{slow, after})
	ctx := context.Background()

	id, err := h.eng.StartRun(ctx, nil)
	require.NoError(t, err)

	<-started
	require.NoError(t, h.eng.Terminate(ctx, id))
	require.NoError(t, h.eng.Wait(id))
	require.NoError(t, h.eng.Terminate(ctx, id))

	rec, err := h.eng.Snapshot(id)
	require.NoError(t, err)

	assert.Equal(t, session.StatusTerminated, rec.Status)
	assert.Equal(t, 0, rec.Faults)
	assert.Equal(t, int32(0), after.calls.Load())

	terminated := h.rec.OfType(broadcast.TypeWorkflowTerminated)
	require.Len(t, terminated, 1)
	assert.Equal(t, "user_kill_switch", terminated[0].Reason)
	assert.Contains(t, h.rec.Texts(), "**NETWORK TERMINATED**: Administrator has issued a hard-kill signal. All process threads halted.")
	assert.Contains(t, h.sink.EventTypes(id), audit.WorkflowTerminated)

	assert.ErrorIs(t, h.eng.Terminate(ctx, "missing"), ErrSessionNotFound)
}

func TestRun_ContextCancellationTerminates(t *testing.T) {
	started := make(chan struct{})
	slow := newStub("slow", 5, []string{"START"}, func(ctx context.Context, _, _ map[string]any) (*core.AgentOutput, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	h := newHarness(t, TopicTable{}, []agent.Agent{slow})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	rec, err := h.eng.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, session.StatusTerminated, rec.Status)
}

func TestCallbacks_VetoAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	a := newStub("a", 1, []string{"START"}, emit("a", nil))
	vetoed := newStub("vetoed", 1, []string{"START"}, emit("vetoed", nil))

	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(NewFunctionCallback(CallbackBeforeAgent, func(_ context.Context, cc *CallbackContext) error {
		if cc.AgentID == "vetoed" {
			return errors.New("not today")
		}
		return nil
	}))

	var directives atomic.Int32
	callbacks.RegisterCallback(NewFunctionCallback(CallbackOnDirective, func(_ context.Context, cc *CallbackContext) error {
		assert.Equal(t, CallbackOnDirective, cc.CallbackType)
		directives.Add(1)
		return nil
	}))

	h := newHarness(t, TopicTable{}, []agent.Agent{a, vetoed}, func(o *Options) {
		o.Callbacks = callbacks
		o.Metrics = m
	})

	_, err = h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(0), vetoed.calls.Load())
	assert.Equal(t, int32(1), directives.Load())

	n, err := testutil.GatherAndCount(reg, "crucible_agent_executions_total", "crucible_events_published_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRemove_ArchivesAndForgets(t *testing.T) {
	mr := miniredis.RunT(t)
	archive := session.NewRedisArchive(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	a := newStub("a", 1, []string{"START"}, emit("a", nil))
	h := newHarness(t, TopicTable{}, []agent.Agent{a}, func(o *Options) {
		o.Archive = archive
	})
	ctx := context.Background()

	rec, err := h.eng.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, h.eng.Sessions())

	require.NoError(t, h.eng.Remove(ctx, rec.ID))

	_, err = h.eng.Snapshot(rec.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, h.eng.Sessions())

	stored, _, err := archive.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusTerminated, stored.Status)
}

func TestClose_RejectsNewRuns(t *testing.T) {
	reg, err := agent.NewRegistry()
	require.NoError(t, err)

	eng := New(reg)
	eng.Close()

	_, err = eng.StartRun(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTopicTable_Resolve(t *testing.T) {
	topics := TopicTable{"a": "A_DONE"}
	assert.Equal(t, "A_DONE", topics.Resolve("a"))
	assert.Equal(t, UnknownTopic, topics.Resolve("b"))
}

func TestCallbacks_LoggingAndAgentRun(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text", Output: &buf})

	callbacks := NewCallbackManager()
	for _, cb := range LoggingCallbacks(logger) {
		callbacks.RegisterCallback(cb)
	}

	a := newStub("a", 1, []string{"START"}, emit("a", nil))
	h := newHarness(t, TopicTable{}, []agent.Agent{a}, func(o *Options) {
		o.Callbacks = callbacks
		o.Logger = logger
	})

	_, err := h.eng.Run(context.Background(), nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "callback=before_agent")
	assert.Contains(t, out, "callback=after_agent")
	assert.Contains(t, out, "directive=CONTINUE")
	assert.Contains(t, out, "callback=on_state_change")
	assert.Contains(t, out, "agent execution completed")
	assert.Contains(t, out, "component=dispatch")
}

func TestBranch_SkippedOnceTerminated(t *testing.T) {
	a := newStub("a", 1, []string{"START"}, emit("a", nil))

	var before atomic.Int32
	callbacks := NewCallbackManager()
	callbacks.RegisterCallback(NewFunctionCallback(CallbackBeforeAgent, func(context.Context, *CallbackContext) error {
		before.Add(1)
		return nil
	}))

	h := newHarness(t, TopicTable{}, []agent.Agent{a}, func(o *Options) { o.Callbacks = callbacks })

	st := fixtures.NewSessionBuilder("late").Build()
	r := newRun(h.eng, st)
	require.True(t, st.Terminate())

	ev := core.NewEvent("START", core.SystemSender, nil, 1)
	r.branch(context.Background(), ev, a, st.View())

	assert.Equal(t, int32(0), before.Load())
	assert.Equal(t, int32(0), a.calls.Load())
	assert.Empty(t, h.rec.OfType(broadcast.TypeAgentUpdate))
	assert.Empty(t, h.rec.Texts())
	assert.Empty(t, h.sink.Entries(st.ID))
}
