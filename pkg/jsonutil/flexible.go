package jsonutil

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// StringValue renders a decoded JSON value as display text.
// nil becomes "", scalars use their natural form, and objects or arrays are
// rendered with Dumps.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return FormatNumber(val)
	case float32:
		return FormatNumber(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any:
		return Dumps(val)
	default:
		return Dumps(val)
	}
}

// FormatNumber renders integral floats without a fractional part or exponent.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ToFloat converts numeric JSON values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
