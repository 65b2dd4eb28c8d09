package ot

// CloneValue deep-copies a JSON value. Scalars are returned as-is;
// objects and arrays are copied recursively.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = CloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = CloneValue(e)
		}
		return s
	default:
		return v
	}
}

// CloneValues deep-copies a slice of JSON values.
func CloneValues(vs []any) []any {
	if vs == nil {
		return nil
	}
	s := make([]any, len(vs))
	for i, v := range vs {
		s[i] = CloneValue(v)
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
