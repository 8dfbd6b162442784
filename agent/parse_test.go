package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crucible/core"
)

func TestParseOutput_RawJSON(t *testing.T) {
	data, ok := ParseOutput(`  {"risk_detected": false, "concerns": []}  `)
	require.True(t, ok)
	assert.Equal(t, false, data["risk_detected"])
}

func TestParseOutput_FencedBlock(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"summary\": \"ok\"}\n```\nLet me know."
	data, ok := ParseOutput(raw)
	require.True(t, ok)
	assert.Equal(t, "ok", data["summary"])
}

func TestParseOutput_EmbeddedObject(t *testing.T) {
	raw := `Sure! {"primary_diagnosis": {"code": "F32.1", "description": "MDD, moderate {single}"}} hope this helps`
	data, ok := ParseOutput(raw)
	require.True(t, ok)
	assert.Equal(t, "F32.1", core.MapValue(data, "primary_diagnosis")["code"])
}

func TestParseOutput_SkipsBrokenLeadingObject(t *testing.T) {
	raw := `{broken} then {"summary": "second"}`
	data, ok := ParseOutput(raw)
	require.True(t, ok)
	assert.Equal(t, "second", data["summary"])
}

func TestParseOutput_Failure(t *testing.T) {
	data, ok := ParseOutput("I cannot produce JSON today.")
	require.False(t, ok)

	assert.True(t, IsParseFailure(data))
	assert.Equal(t, "I cannot produce JSON today.", data["raw"])
	assert.Equal(t, true, data[core.KeyClarificationNeeded])
	assert.Equal(t, ParseRecoveryQuestion, data[core.KeyClarificationQuestion])
}

func TestParseOutput_NullIsFailure(t *testing.T) {
	_, ok := ParseOutput("null")
	assert.False(t, ok)
}
