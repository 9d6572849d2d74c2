package admin

import (
	"fmt"
	"strconv"
)

// Params is the parameter object of an admin request.
type Params map[string]any

// Feedback is the decoded feedback object of an admin response.
type Feedback map[string]any

func (f Feedback) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a list value, converting each element to its string form.
func (f Feedback) Strings(key string) []string {
	raw, ok := f[key].([]any)
	if !ok {
		if s, ok := f[key].([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func (f Feedback) Int(key string) (int, bool) {
	switch v := f[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

func (f Feedback) Map(key string) Feedback {
	if m, ok := f[key].(map[string]any); ok {
		return Feedback(m)
	}
	return nil
}
