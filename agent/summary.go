package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/crucible/core"
)

// DefaultSummary renders the one-line chat summary used when an agent kind
// has no formatter of its own: the explicit summary, then a pause notice,
// then the reasoning, then a generic completion line.
func DefaultSummary(agentID string, data map[string]any) string {
	if s := strings.TrimSpace(core.StringValue(data, core.KeySummary)); s != "" {
		return s
	}

	if core.Truthy(data[core.KeyClarificationNeeded]) {
		q := core.StringValue(data, core.KeyClarificationQuestion)
		if q == "" {
			q = "Additional information required."
		}
		return fmt.Sprintf("**PAUSED**: %s", q)
	}

	if r := strings.TrimSpace(core.StringValue(data, core.KeyReasoning)); r != "" {
		return r
	}

	return fmt.Sprintf("Agent *%s* processing complete.", agentID)
}

// TitleCase turns snake_case ids into "Snake Case" labels.
func TitleCase(id string) string {
	parts := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}

	return strings.Join(parts, " ")
}
