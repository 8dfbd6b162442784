package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSummary(t *testing.T) {
	assert.Equal(t, "all good", DefaultSummary("a", map[string]any{"summary": "all good", "reasoning": "x"}))
	assert.Equal(t, "**PAUSED**: dose?", DefaultSummary("a", map[string]any{"clarification_needed": true, "clarification_question": "dose?"}))
	assert.Equal(t, "because", DefaultSummary("a", map[string]any{"reasoning": "because"}))
	assert.Equal(t, "Agent *a* processing complete.", DefaultSummary("a", nil))
	assert.Equal(t, "42", DefaultSummary("a", map[string]any{"summary": 42.0}))
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Medication Management", TitleCase("medication_management"))
	assert.Equal(t, "", TitleCase(""))
}
