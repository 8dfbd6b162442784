package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOutput_LiftsClarification(t *testing.T) {
	out := NewOutput("diagnosis_mapping", StatusCompleted, 0.9, map[string]any{
		"clarification_needed":   true,
		"clarification_question": "Duration of symptoms?",
		"suggested_answer":       "Two weeks",
	}, "")

	assert.True(t, out.WantsClarification())
	assert.Equal(t, "Duration of symptoms?", out.ClarificationQuestion)
	assert.Equal(t, "Two weeks", out.SuggestedAnswer)
}

func TestNewOutput_ClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, NewOutput("a", StatusCompleted, 3, nil, "").Confidence)
	assert.Equal(t, 0.0, NewOutput("a", StatusCompleted, -1, nil, "").Confidence)
}

func TestNewErrorOutput(t *testing.T) {
	out := NewErrorOutput("risk_assessment", "model unavailable")

	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, 0.0, out.Confidence)
	assert.Equal(t, "model unavailable", out.Data[KeyError])
	assert.False(t, out.WantsClarification())
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{"false", false},
		{"", false},
		{"yes", true},
		{"true", true},
		{"NO", false},
		{"none", false},
		{"Null", false},
		{"off", false},
		{" False ", false},
		{float64(0), false},
		{float64(2), true},
		{[]any{}, false},
		{[]any{1}, true},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, Truthy(c.in), "value %#v", c.in)
	}
}

func TestCloneMap_IsDeep(t *testing.T) {
	src := map[string]any{
		"clinical_entity": map[string]any{"symptoms": []any{"insomnia"}},
	}

	cp := CloneMap(src)
	cp["clinical_entity"].(map[string]any)["symptoms"].([]any)[0] = "changed"
	cp["new"] = 1

	assert.Equal(t, "insomnia", src["clinical_entity"].(map[string]any)["symptoms"].([]any)[0])
	assert.NotContains(t, src, "new")
}
