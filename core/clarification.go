package core

import "time"

// Reserved context keys written by the engine rather than by agents.
const (
	// KeyUserClarifications maps agent id to the latest answer given by the user.
	KeyUserClarifications = "user_clarifications"
	// KeyClarificationHistory carries the ordered []Clarification into agent views.
	KeyClarificationHistory = "clarification_history"
)

// Clarification records one question asked by an agent and, once given, the
// user's answer. Records are kept in the order the questions were asked.
type Clarification struct {
	AgentID         string    `json:"agent_id"`
	Question        string    `json:"question"`
	SuggestedAnswer string    `json:"suggested_answer,omitempty"`
	Answer          string    `json:"answer,omitempty"`
	AskedAt         time.Time `json:"asked_at"`
	AnsweredAt      time.Time `json:"answered_at,omitzero"`
}

// Answered reports whether the user has replied.
func (c Clarification) Answered() bool { return !c.AnsweredAt.IsZero() }

// UserClarification returns the answer stored for agentID in a context view.
func UserClarification(view map[string]any, agentID string) (string, bool) {
	switch m := view[KeyUserClarifications].(type) {
	case map[string]string:
		a, ok := m[agentID]
		return a, ok
	case map[string]any:
		a, ok := m[agentID].(string)
		return a, ok
	default:
		return "", false
	}
}

// ClarificationHistory extracts the ordered records from a context view.
func ClarificationHistory(view map[string]any) []Clarification {
	h, _ := view[KeyClarificationHistory].([]Clarification)
	return h
}
