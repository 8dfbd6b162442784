package core

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome classification of one agent execution.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusNeedsReview Status = "needs_review"
)

// Well-known keys inside AgentOutput.Data.
const (
	KeyClarificationNeeded   = "clarification_needed"
	KeyClarificationQuestion = "clarification_question"
	KeySuggestedAnswer       = "suggested_answer"
	KeyRiskDetected          = "risk_detected"
	KeyError                 = "error"
	KeySummary               = "summary"
	KeyReasoning             = "reasoning"
)

// AgentOutput is the structured result of one agent execution. It is
// produced once and never mutated afterwards.
type AgentOutput struct {
	AgentID    string         `json:"agent_id"`
	Status     Status         `json:"status"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`

	ClarificationNeeded   bool   `json:"clarification_needed,omitempty"`
	ClarificationQuestion string `json:"clarification_question,omitempty"`
	SuggestedAnswer       string `json:"suggested_answer,omitempty"`
}

// NewOutput builds an output and lifts the clarification fields out of data.
func NewOutput(agentID string, status Status, confidence float64, data map[string]any, reasoning string) *AgentOutput {
	if data == nil {
		data = map[string]any{}
	}

	out := &AgentOutput{
		AgentID:    agentID,
		Status:     status,
		Confidence: clamp(confidence),
		Data:       data,
		Reasoning:  reasoning,
		Timestamp:  time.Now().UTC(),
	}

	out.ClarificationNeeded = Truthy(data[KeyClarificationNeeded])
	out.ClarificationQuestion = StringValue(data, KeyClarificationQuestion)
	out.SuggestedAnswer = StringValue(data, KeySuggestedAnswer)

	return out
}

// NewErrorOutput returns an error-status output that carries msg under the
// "error" data key.
func NewErrorOutput(agentID, msg string) *AgentOutput {
	return NewOutput(agentID, StatusError, 0, map[string]any{KeyError: msg}, msg)
}

// WantsClarification reports whether the output asks the user a question.
func (o *AgentOutput) WantsClarification() bool {
	return o != nil && o.ClarificationNeeded
}

// falsy lists the strings Truthy reads as false, compared case-insensitively.
var falsy = []string{"", "false", "0", "no", "n", "none", "null", "nil", "off"}

// Truthy interprets loosely typed JSON values as booleans.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		for _, f := range falsy {
			if strings.EqualFold(s, f) {
				return false
			}
		}
		return true
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// StringValue returns m[key] as a string. Non-string scalars are formatted,
// missing keys yield "".
func StringValue(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

// MapValue returns m[key] when it is a JSON object.
func MapValue(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}

	return nil
}

// ListValue returns m[key] when it is a JSON array.
func ListValue(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}

	return nil
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
