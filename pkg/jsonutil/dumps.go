package jsonutil

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Dumps renders a JSON value as compact text with ", " and ": " separators,
// sorted object keys and unescaped non-ASCII characters. This is the form
// nested values take inside flat CSV cells, e.g. [1, 2] or {"a": "b"}.
func Dumps(v any) string {
	var sb strings.Builder
	writeValue(&sb, normalize(v))
	return sb.String()
}

// normalize converts typed Go values (structs, []string, map[string]string)
// into the generic shapes produced by encoding/json.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, json.Number, map[string]any, []any:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func writeValue(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case string:
		writeString(sb, val)
	case bool, float64, float32, int, int32, int64, json.Number:
		sb.WriteString(StringValue(val))
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, normalize(item))
		}
		sb.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeString(sb, k)
			sb.WriteString(": ")
			writeValue(sb, normalize(val[k]))
		}
		sb.WriteByte('}')
	default:
		writeValue(sb, normalize(val))
	}
}

func writeString(sb *strings.Builder, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		sb.WriteString(`""`)
		return
	}
	sb.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}
