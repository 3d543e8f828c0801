package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseArguments decodes a JSON document emitted by a model. An empty
// document is an empty object. Invalid JSON is returned unchanged as the raw
// string so callers can surface it during validation.
func ParseArguments(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	if !gjson.Valid(raw) {
		return raw
	}
	return gjson.Parse(raw).Value()
}

// ArgumentsJSON renders an arguments value for providers that expect a JSON
// string. Raw strings that already hold JSON pass through.
func ArgumentsJSON(args any) string {
	switch v := args.(type) {
	case nil:
		return "{}"
	case string:
		if gjson.Valid(v) {
			return v
		}
		b, _ := json.Marshal(v)
		return string(b)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(b)
	}
}

// ArgumentsObject coerces an arguments value into an object for providers
// whose wire format requires one. Non-object values are wrapped under "value".
func ArgumentsObject(args any) map[string]any {
	switch v := args.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		if parsed, ok := ParseArguments(v).(map[string]any); ok {
			return parsed
		}
		return map[string]any{"value": v}
	default:
		b, err := json.Marshal(v)
		if err == nil {
			var m map[string]any
			if json.Unmarshal(b, &m) == nil && m != nil {
				return m
			}
		}
		return map[string]any{"value": v}
	}
}

// ResultText renders a tool result for providers that carry results as text.
func ResultText(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return "null"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// DeepCopy clones JSON-like values (maps, slices, scalars).
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = DeepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	default:
		return v
	}
}
