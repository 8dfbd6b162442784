package engine

import (
	"github.com/hupe1980/crucible/core"
)

// SafetyOptions configures the safety override applied to results of the
// safety agent that report a risk.
//
// A flagged result is republished on ClearedTopic when the orientation
// agent approved the clinical context (context[OrientationAgentID]
// [ApprovalKey] == ApprovedValue). Otherwise the run pauses with Reason and
// Question and nothing is published.
type SafetyOptions struct {
	// AgentID identifies the safety agent. Empty disables the override.
	AgentID string
	// OrientationAgentID is the agent whose approval clears a flagged risk.
	OrientationAgentID string
	ClearedTopic       string
	ApprovalKey        string
	ApprovedValue      string
	Reason             string
	Question           string
}

// DefaultSafetyOptions returns the settings used by the clinical team.
func DefaultSafetyOptions() SafetyOptions {
	return SafetyOptions{
		AgentID:            "safety_triage",
		OrientationAgentID: "user_assist",
		ClearedTopic:       "SAFETY_CLEARED",
		ApprovalKey:        "validation_result",
		ApprovedValue:      "approved",
		Reason:             "SAFETY STOP",
		Question:           "Safety Risk Detected. Verify?",
	}
}

type safetyVerdict int

const (
	safetyPass safetyVerdict = iota
	safetyOverride
	safetyStop
)

// check classifies a result of agentID against the live context.
func (s SafetyOptions) check(agentID string, data, ctx map[string]any) safetyVerdict {
	if s.AgentID == "" || agentID != s.AgentID || !core.Truthy(data[core.KeyRiskDetected]) {
		return safetyPass
	}

	orientation := core.MapValue(ctx, s.OrientationAgentID)
	if orientation != nil && core.StringValue(orientation, s.ApprovalKey) == s.ApprovedValue {
		return safetyOverride
	}

	return safetyStop
}

// triggeringAgent names the agent whose output led to the safety check.
func (s SafetyOptions) triggeringAgent(senderID string) string {
	if senderID == core.SystemSender {
		return s.OrientationAgentID
	}

	return senderID
}
