package broadcast

import (
	"context"
	"time"

	"github.com/hupe1980/crucible/logging"
)

// Type is the kind of notification.
type Type string

const (
	TypeChatMessage        Type = "chat_message"
	TypeAgentUpdate        Type = "agent_update"
	TypeWorkflowStart      Type = "workflow_start"
	TypeWorkflowPause      Type = "workflow_pause"
	TypeWorkflowComplete   Type = "workflow_complete"
	TypeWorkflowTerminated Type = "workflow_terminated"
)

// Chat senders.
const (
	SenderSystem        = "System"
	SenderAdministrator = "Administrator"
	SenderSupervisor    = "Supervisor"
	SenderUser          = "User"
)

// Chat variants control how a line is rendered.
const (
	VariantSystem     = "system"
	VariantAgent      = "agent"
	VariantConsultant = "consultant"
	VariantUser       = "user"
)

// Agent statuses reported through agent_update.
const (
	StatusRunning = "running"
	StatusError   = "error"
)

// Notification is one outbound message. Only the fields of its Type are set.
type Notification struct {
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// chat_message
	Text    string `json:"text,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Variant string `json:"variant,omitempty"`

	// chat_message, agent_update, workflow_pause
	AgentID string `json:"agent_id,omitempty"`
	Status  string `json:"status,omitempty"`

	// workflow_start
	Message string `json:"message,omitempty"`

	// workflow_pause
	Reason            string `json:"reason,omitempty"`
	Question          string `json:"question,omitempty"`
	SuggestedAnswer   string `json:"suggested_answer,omitempty"`
	TriggeringAgentID string `json:"triggering_agent_id,omitempty"`

	Data any `json:"data,omitempty"`
}

// Chat builds a team chat line.
func Chat(sessionID, text, sender, variant, agentID string) Notification {
	return Notification{
		Type:      TypeChatMessage,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Text:      text,
		Sender:    sender,
		Variant:   variant,
		AgentID:   agentID,
	}
}

// AgentUpdate reports an agent status change.
func AgentUpdate(sessionID, agentID, status string, data any) Notification {
	return Notification{
		Type:      TypeAgentUpdate,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
		Status:    status,
		Data:      data,
	}
}

// WorkflowStart announces a new run.
func WorkflowStart(sessionID, message string) Notification {
	return Notification{Type: TypeWorkflowStart, SessionID: sessionID, Timestamp: time.Now().UTC(), Message: message}
}

// PauseInfo describes why a branch stopped and what the operator is asked.
type PauseInfo struct {
	Reason            string
	AgentID           string
	Question          string
	SuggestedAnswer   string
	TriggeringAgentID string
	Data              map[string]any
}

// WorkflowPause asks the operator to act.
func WorkflowPause(sessionID string, p PauseInfo) Notification {
	return Notification{
		Type:              TypeWorkflowPause,
		SessionID:         sessionID,
		Timestamp:         time.Now().UTC(),
		Reason:            p.Reason,
		AgentID:           p.AgentID,
		Question:          p.Question,
		SuggestedAnswer:   p.SuggestedAnswer,
		TriggeringAgentID: p.TriggeringAgentID,
		Data:              p.Data,
	}
}

// WorkflowComplete carries the final context.
func WorkflowComplete(sessionID string, data map[string]any) Notification {
	return Notification{Type: TypeWorkflowComplete, SessionID: sessionID, Timestamp: time.Now().UTC(), Data: data}
}

// WorkflowTerminated announces a hard stop.
func WorkflowTerminated(sessionID, reason string) Notification {
	return Notification{Type: TypeWorkflowTerminated, SessionID: sessionID, Timestamp: time.Now().UTC(), Reason: reason}
}

// Broadcaster delivers notifications. Implementations must not block for
// long and must be safe for concurrent use.
type Broadcaster interface {
	Broadcast(ctx context.Context, n Notification)
}

// Func adapts a function to Broadcaster.
type Func func(ctx context.Context, n Notification)

// Broadcast calls f.
func (f Func) Broadcast(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Broadcaster = Func(func(context.Context, Notification) {})

// Multi fans a notification out to every broadcaster in order.
func Multi(bs ...Broadcaster) Broadcaster {
	return Func(func(ctx context.Context, n Notification) {
		for _, b := range bs {
			b.Broadcast(ctx, n)
		}
	})
}

// Log writes every notification to logger at debug level.
func Log(logger logging.Logger) Broadcaster {
	return Func(func(_ context.Context, n Notification) {
		logger.Debug("notification", "type", string(n.Type), "session_id", n.SessionID, "agent_id", n.AgentID, "text", n.Text, "reason", n.Reason)
	})
}
