package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello {{.name | upper}} <{{.tag}}>", map[string]any{"name": "ada", "tag": "x&y"})
	require.NoError(t, err)
	assert.Equal(t, "Hello ADA <x&y>", out)
}

func TestRenderTemplate_MissingKeyAndJSON(t *testing.T) {
	out, err := RenderTemplate("[{{.missing}}] {{json .data}}", map[string]any{"data": map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.Contains(t, out, "[]")
	assert.Contains(t, out, `"a": 1`)
}

func TestRenderTemplate_FastPathAndParseError(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	_, err = RenderTemplate("{{ .unterminated", nil)
	assert.Error(t, err)
}

func TestRenderTemplate_Truncate(t *testing.T) {
	out, err := RenderTemplate("{{truncate 4 .text}}|{{truncate 10 .text}}|{{truncate 3 .none}}", map[string]any{"text": "transcript"})
	require.NoError(t, err)
	assert.Equal(t, "tran...|transcript|", out)
}

func TestSchemaValidate(t *testing.T) {
	s := Schema{Required: []string{"transcript"}, Types: map[string]string{"transcript": "string", "duration": "integer"}}

	require.NoError(t, s.Validate(map[string]any{"transcript": "text", "extra": true}))

	var verr *ValidationError

	err := s.Validate(map[string]any{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transcript", verr.Field)

	err = s.Validate(map[string]any{"transcript": "   "})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required field is empty", verr.Message)

	err = s.Validate(map[string]any{"transcript": "t", "duration": 1.5})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duration", verr.Field)

	require.NoError(t, s.Validate(map[string]any{"transcript": "t", "duration": float64(30)}))
}
