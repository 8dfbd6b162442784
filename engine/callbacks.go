package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/crucible/admin"
	"github.com/hupe1980/crucible/core"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/metrics"
	"github.com/hupe1980/crucible/session"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Callbacks hook into the dispatch loop without modifying it. Each type
// names one point in the life of a run:
//   - BeforeAgent/AfterAgent: Around one agent execution
//   - OnError: When an agent branch faults
//   - OnDirective: After the administrator ruled on an outbound event
//   - OnStateChange: When the session status changes
//
// Callbacks run synchronously on the dispatching goroutine. Only a
// BeforeAgent error changes the flow: it skips the agent's branch.
type CallbackType string

const (
	// CallbackBeforeAgent is triggered before an agent executes. Returning
	// an error vetoes the execution.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent is triggered after an agent returned an output.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnError is triggered when an agent branch is aborted.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnDirective is triggered for every administrator directive.
	CallbackOnDirective CallbackType = "on_directive"

	// CallbackOnStateChange is triggered when the session status changes.
	CallbackOnStateChange CallbackType = "on_state_change"
)

// CallbackContext carries what a callback may inspect. Fields not relevant
// to the callback type are zero.
type CallbackContext struct {
	// SessionID identifies the run.
	SessionID string

	// Event is the event being dispatched. Nil for state changes.
	Event *core.Event

	// AgentID identifies the agent associated with this callback.
	AgentID string

	// Output is the agent result for AfterAgent.
	Output *core.AgentOutput

	// Directive is set for OnDirective.
	Directive *admin.Directive

	// Status is the new session status for OnStateChange.
	Status session.Status

	// Duration of the agent execution for AfterAgent and OnError.
	Duration time.Duration

	// Err is the fault for OnError.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for execution lifecycle hooks.
//
// Implementations should be fast and must not block: they run inside the
// agent branch that triggered them.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackAfterAgent,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("agent %s finished in %s", cc.AgentID, cc.Duration)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is the registry of lifecycle callbacks of an Engine.
//
// Callbacks are executed in registration order; the first error stops the
// chain and is returned. Registration and execution are safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
//
// Example:
//
//	manager := NewCallbackManager()
//	manager.RegisterCallback(NewLoggingCallback(CallbackOnError, logger))
//	manager.RegisterCallback(metricsCallback)
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type.
// A nil manager executes nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes one structured log line per lifecycle event.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterAgent, logger)
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event with its session and agent.
func (c *LoggingCallback) Execute(_ context.Context, cc *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	args := []any{"callback", string(c.callbackType), "session_id", cc.SessionID}
	if cc.AgentID != "" {
		args = append(args, "agent", cc.AgentID)
	}
	if cc.Event != nil {
		args = append(args, "topic", cc.Event.Topic)
	}
	if cc.Directive != nil {
		args = append(args, "directive", string(cc.Directive.Kind))
	}
	if cc.Status != "" {
		args = append(args, "status", string(cc.Status))
	}
	if cc.Duration > 0 {
		args = append(args, "duration", cc.Duration)
	}

	if cc.Err != nil {
		c.logger.Error("lifecycle", append(args, "error", cc.Err)...)
		return nil
	}

	c.logger.Debug("lifecycle", args...)

	return nil
}

// CallbackTypes lists every lifecycle point in the order a branch meets them.
var CallbackTypes = []CallbackType{
	CallbackBeforeAgent,
	CallbackAfterAgent,
	CallbackOnError,
	CallbackOnDirective,
	CallbackOnStateChange,
}

// LoggingCallbacks returns one LoggingCallback per CallbackType.
func LoggingCallbacks(logger logging.Logger) []Callback {
	out := make([]Callback, 0, len(CallbackTypes))
	for _, t := range CallbackTypes {
		out = append(out, NewLoggingCallback(t, logger))
	}

	return out
}

// MetricsCallbacks returns callbacks that feed m from the run lifecycle.
func MetricsCallbacks(m *metrics.Metrics) []Callback {
	return []Callback{
		NewFunctionCallback(CallbackAfterAgent, func(_ context.Context, cc *CallbackContext) error {
			status := ""
			if cc.Output != nil {
				status = string(cc.Output.Status)
			}
			m.ObserveAgent(cc.AgentID, status, cc.Duration)
			return nil
		}),
		NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
			m.AgentFault(cc.AgentID)
			return nil
		}),
		NewFunctionCallback(CallbackOnDirective, func(_ context.Context, cc *CallbackContext) error {
			m.Directive(string(cc.Directive.Kind))
			return nil
		}),
		NewFunctionCallback(CallbackOnStateChange, func(_ context.Context, cc *CallbackContext) error {
			m.SessionStatus(string(cc.Status))
			return nil
		}),
	}
}
