package core

// CloneMap returns a deep copy of a JSON-like map. Nested maps and slices
// are copied; other values are shared, which is safe for the immutable
// scalars produced by JSON decoding.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case map[string]string:
		cp := make(map[string]string, len(t))
		for k, s := range t {
			cp[k] = s
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
