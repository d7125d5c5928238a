// Package extractor resolves dot-notation field paths against record data
package extractor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Extractor resolves field paths against nested record data
type Extractor struct{}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract resolves a dot-notation path against data.
// Supported syntax:
// - Simple path: "amount", "source.system_name", "metadata.priority"
// - Array access: "tags[0]", "sources[1].record_id"
// A missing segment yields (nil, nil); only a type mismatch is an error.
func (e *Extractor) Extract(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	current := data
	for _, seg := range strings.Split(path, ".") {
		key, index, indexed := parseSegment(seg)

		if key != "" {
			m, ok := asMap(current)
			if !ok {
				return nil, fmt.Errorf("cannot resolve key %q against type %T", key, current)
			}
			val, ok := m[key]
			if !ok {
				return nil, nil
			}
			current = val
		}

		if indexed {
			arr, ok := current.([]any)
			if !ok {
				return nil, fmt.Errorf("index access on non-array type %T", current)
			}
			if index < 0 || index >= len(arr) {
				return nil, nil
			}
			current = arr[index]
		}

		if current == nil {
			return nil, nil
		}
	}

	return current, nil
}

// ExtractString resolves a path and coerces the value to a string.
// Returns nil when the path resolves to nothing.
func (e *Extractor) ExtractString(data any, path string) (*string, error) {
	value, err := e.Extract(data, path)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}

	s := Stringify(value)
	return &s, nil
}

// parseSegment splits "key[2]" into its key and optional index
func parseSegment(seg string) (string, int, bool) {
	open := strings.Index(seg, "[")
	if open == -1 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}

	index, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], index, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		result := make(map[string]any, len(m))
		for k, val := range m {
			result[k] = val
		}
		return result, true
	default:
		return nil, false
	}
}

// Stringify coerces a field value to its comparison string form
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		// Complex values compare by their JSON encoding
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Numeric attempts to coerce a field value to a float64
func Numeric(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
