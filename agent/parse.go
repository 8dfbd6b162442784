package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/hupe1980/crucible/core"
)

// ParseErrorMarker is stored under the "error" key when no structured object
// could be recovered from a model response.
const ParseErrorMarker = "Failed to parse JSON"

// ParseRecoveryQuestion is asked of the user after a parse failure.
const ParseRecoveryQuestion = "I encountered a formatting error while processing the analysis. " +
	"Could you please provide a brief update or re-state the last point of the session to help me re-sync?"

var errNullObject = errors.New("agent: null object")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// ParseOutput turns model text into structured data. It tries, in order: the
// whole text as a JSON object, a fenced code block, and the first balanced
// {...} object in the text. When everything fails the returned data carries
// ParseErrorMarker, the raw text and a clarification request, and ok is false.
func ParseOutput(raw string) (data map[string]any, ok bool) {
	text := strings.TrimSpace(raw)

	if m, err := decodeObject(text); err == nil {
		return m, true
	}

	if match := fencedBlock.FindStringSubmatch(text); match != nil {
		if m, err := decodeObject(match[1]); err == nil {
			return m, true
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			if m, err := decodeObject(text[start : end+1]); err == nil {
				return m, true
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return map[string]any{
		core.KeyError:                 ParseErrorMarker,
		"raw":                         raw,
		core.KeyClarificationNeeded:   true,
		core.KeyClarificationQuestion: ParseRecoveryQuestion,
	}, false
}

// IsParseFailure reports whether data is the synthetic parse failure object.
func IsParseFailure(data map[string]any) bool {
	return core.StringValue(data, core.KeyError) == ParseErrorMarker
}

func decodeObject(s string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}

	if m == nil {
		return nil, errNullObject
	}

	return m, nil
}

// matchBrace returns the index of the brace closing the object opened at
// start, honouring JSON string literals, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}

	return -1
}
