package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/crucible/admin"
	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/logging"
)

// Level classifies an entry.
type Level string

const (
	LevelEvent         Level = "EVENT"
	LevelAgentStart    Level = "AGENT_START"
	LevelAgentComplete Level = "AGENT_COMPLETE"
	LevelContextUpdate Level = "CONTEXT_UPDATE"
	LevelClarification Level = "CLARIFICATION"
	LevelAdministrator Level = "ADMINISTRATOR"
	LevelSystem        Level = "SYSTEM"
	LevelError         Level = "ERROR"
)

// Workflow event types.
const (
	WorkflowStart      = "WORKFLOW_START"
	WorkflowPause      = "WORKFLOW_PAUSE"
	WorkflowResume     = "WORKFLOW_RESUME"
	WorkflowComplete   = "WORKFLOW_COMPLETE"
	WorkflowTerminated = "WORKFLOW_TERMINATED"
)

// Phase is the stage of an agent execution.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseComplete Phase = "complete"
	PhaseError    Phase = "error"
)

// Entry is one line of the audit trail.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
	SessionID string         `json:"session_id"`
	Level     Level          `json:"level"`
	EventType string         `json:"event_type"`
	AgentID   string         `json:"agent_id,omitempty"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Detail carries the bulky payload (full context or agent output). Sinks
	// that can store it separately do so; it is never part of the line.
	Detail map[string]any `json:"-"`
}

// Sink stores entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, e Entry) error { return f(ctx, e) }

// Tee writes every entry to all sinks and joins their errors.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, e Entry) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Write(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Options configures a Logger.
type Options struct {
	Logger logging.Logger
}

// Logger builds entries and numbers them per session. Entries of one
// session reach the sink in sequence order.
type Logger struct {
	sink Sink
	opts Options

	mu   sync.Mutex
	seqs map[string]*sequence
}

type sequence struct {
	mu sync.Mutex
	n  int64
}

// New creates a Logger writing to sink. A nil sink discards entries.
func New(sink Sink, optFns ...func(o *Options)) *Logger {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if sink == nil {
		sink = SinkFunc(func(context.Context, Entry) error { return nil })
	}

	return &Logger{sink: sink, opts: opts, seqs: make(map[string]*sequence)}
}

// Log stamps e with the time and the next sequence number of its session
// and writes it.
func (l *Logger) Log(ctx context.Context, e Entry) {
	seq := l.sequence(e.SessionID)

	seq.mu.Lock()
	defer seq.mu.Unlock()

	seq.n++
	e.Sequence = seq.n
	e.Timestamp = time.Now().UTC()
	if e.Data == nil {
		e.Data = map[string]any{}
	}

	if err := l.sink.Write(ctx, e); err != nil {
		l.opts.Logger.Warn("audit write failed", "session_id", e.SessionID, "event_type", e.EventType, "error", err)
	}
}

// Forget drops the sequence counter of a removed session.
func (l *Logger) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seqs, sessionID)
}

func (l *Logger) sequence(sessionID string) *sequence {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.seqs[sessionID]
	if !ok {
		s = &sequence{}
		l.seqs[sessionID] = s
	}

	return s
}

// Event records a published event.
func (l *Logger) Event(ctx context.Context, sessionID string, ev core.Event) {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	l.Log(ctx, Entry{
		SessionID: sessionID,
		Level:     LevelEvent,
		EventType: ev.Topic,
		Data: map[string]any{
			"event_id":        ev.ID,
			"sender_id":       ev.SenderID,
			"sender_priority": ev.SenderPriority,
			"payload_keys":    keys,
		},
	})
}

// Execution describes one phase of an agent execution.
type Execution struct {
	Input    map[string]any
	Output   map[string]any
	Duration time.Duration
	Err      error
}

// AgentExecution records the start, completion or failure of an agent.
func (l *Logger) AgentExecution(ctx context.Context, sessionID, agentID string, phase Phase, x Execution) {
	level := LevelAgentStart
	switch phase {
	case PhaseComplete:
		level = LevelAgentComplete
	case PhaseError:
		level = LevelError
	}

	data := map[string]any{"phase": string(phase)}
	if phase != PhaseStart {
		data["duration_ms"] = x.Duration.Milliseconds()
	}
	if x.Output != nil {
		data["output_summary"] = SummarizeOutput(x.Output)
	}
	if x.Err != nil {
		data["error"] = x.Err.Error()
	}

	detail := map[string]any{}
	if x.Input != nil {
		detail["input_data"] = x.Input
	}
	if x.Output != nil {
		detail["output_data"] = x.Output
	}
	if len(detail) == 0 {
		detail = nil
	}

	l.Log(ctx, Entry{
		SessionID: sessionID,
		Level:     level,
		EventType: "AGENT_" + upper(phase),
		AgentID:   agentID,
		Data:      data,
		Detail:    detail,
	})
}

// ContextSnapshot records the full context at a named trigger point.
func (l *Logger) ContextSnapshot(ctx context.Context, sessionID, agentID, trigger string, snapshot map[string]any) {
	l.Log(ctx, Entry{
		SessionID: sessionID,
		Level:     LevelContextUpdate,
		EventType: "CONTEXT_SNAPSHOT",
		AgentID:   agentID,
		Data:      map[string]any{"trigger": trigger, "keys": len(snapshot)},
		Detail:    map[string]any{"trigger": trigger, "context": snapshot},
	})
}

// AdministratorDecision records an administrator ruling on the candidate
// event of agentID.
func (l *Logger) AdministratorDecision(ctx context.Context, sessionID, agentID string, d admin.Directive) {
	data := map[string]any{
		"directive":     string(d.Kind),
		"reason":        d.Reason,
		"loop_detected": d.LoopDetected,
	}
	if d.WinnerID != "" {
		data["winner_id"] = d.WinnerID
		data["winner_priority"] = d.WinnerPriority
		if d.WinnerID != agentID {
			data["loser_id"] = agentID
		}
	}
	if len(d.Participants) > 0 {
		data["participants"] = d.Participants
	}

	l.Log(ctx, Entry{
		SessionID: sessionID,
		Level:     LevelAdministrator,
		EventType: "ADMINISTRATOR_" + string(d.Kind),
		AgentID:   agentID,
		Data:      data,
	})
}

// Clarification records a question (no answer yet) or a response.
func (l *Logger) Clarification(ctx context.Context, sessionID string, c core.Clarification, triggeringAgentID string) {
	eventType := "CLARIFICATION_REQUEST"
	if c.Answered() {
		eventType = "CLARIFICATION_RESPONSE"
	}

	data := map[string]any{"question": c.Question}
	if c.SuggestedAnswer != "" {
		data["suggested_answer"] = c.SuggestedAnswer
	}
	if c.Answered() {
		data["user_answer"] = c.Answer
	}
	if triggeringAgentID != "" {
		data["triggering_agent_id"] = triggeringAgentID
	}

	l.Log(ctx, Entry{
		SessionID: sessionID,
		Level:     LevelClarification,
		EventType: eventType,
		AgentID:   c.AgentID,
		Data:      data,
	})
}

// Workflow records a lifecycle marker such as WORKFLOW_START.
func (l *Logger) Workflow(ctx context.Context, sessionID, eventType string, data map[string]any) {
	l.Log(ctx, Entry{
		SessionID: sessionID,
		Level:     LevelSystem,
		EventType: eventType,
		Data:      data,
	})
}

// SummarizeOutput keeps the flags worth scanning for in a trail and
// replaces lists by their length under "<key>_count".
func SummarizeOutput(data map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range []string{core.KeyRiskDetected, core.KeyClarificationNeeded, core.KeyError, core.KeySummary} {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}

	for k, v := range data {
		if list, ok := v.([]any); ok {
			out[fmt.Sprintf("%s_count", k)] = len(list)
		}
	}

	return out
}

func upper(p Phase) string {
	switch p {
	case PhaseComplete:
		return "COMPLETE"
	case PhaseError:
		return "ERROR"
	default:
		return "START"
	}
}
