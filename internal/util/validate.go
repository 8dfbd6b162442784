package util

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError describes the first field that failed input validation.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Schema is a minimal description of an input payload: the fields that
// must be present and non-empty, and the JSON types of known fields.
type Schema struct {
	Required []string
	Types    map[string]string // field -> string|integer|number|boolean|array|object
}

// Validate checks params against s. Extra fields are allowed.
func (s Schema) Validate(params map[string]any) error {
	for _, field := range s.Required {
		v, ok := params[field]
		if !ok || v == nil {
			return &ValidationError{Field: field, Message: "required field is missing"}
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			return &ValidationError{Field: field, Message: "required field is empty"}
		}
	}

	fields := make([]string, 0, len(s.Types))
	for f := range s.Types {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, exists := params[field]
		if !exists {
			continue
		}
		if expected := s.Types[field]; !isValidType(value, expected) {
			return &ValidationError{
				Field:   field,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expected, value),
			}
		}
	}

	return nil
}

// isValidType checks if a value is valid according to the expected JSON type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
