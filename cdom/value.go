package cdom

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Cell is anything exposing a read/write value facet.
type Cell interface {
	Get() any
	Set(v any) error
}

// Unwrap dereferences cells until a plain value remains.
func Unwrap(v any) any {
	for {
		c, ok := v.(Cell)
		if !ok {
			return v
		}
		v = c.Get()
	}
}

// Normalize converts Go values into the JSON-shaped set the evaluator works
// with: every number becomes float64, typed slices and maps become []any and
// map[string]any.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, float64, string, Marker:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []any:
		for i, e := range x {
			x[i] = Normalize(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = Normalize(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = Normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	}
	return v
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case Marker:
		return string(x), true
	}
	return "", false
}

// Truthy follows the loose truthiness rules descriptors are written against.
func Truthy(v any) bool {
	switch x := Normalize(Unwrap(v)).(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	case Marker:
		return x != ""
	}
	return true
}

// ToNumber converts a value to float64, yielding NaN when it has no numeric
// reading.
func ToNumber(v any) float64 {
	switch x := Normalize(Unwrap(v)).(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		return parseNumber(x)
	case Marker:
		return parseNumber(string(x))
	case []any:
		switch len(x) {
		case 0:
			return 0
		case 1:
			return ToNumber(x[0])
		}
	}
	return math.NaN()
}

func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ToInt truncates like parseInt, returning ok=false for NaN.
func ToInt(v any) (int, bool) {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Stringify is the display conversion: nil renders empty, numbers without
// trailing zeros, containers as JSON.
func Stringify(v any) string {
	switch x := Normalize(Unwrap(v)).(type) {
	case nil:
		return ""
	case string:
		return x
	case Marker:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return FormatNumber(x)
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// LooseEqual compares with type coercion between numbers, strings and
// booleans. Containers compare structurally.
func LooseEqual(a, b any) bool {
	a, b = Normalize(Unwrap(a)), Normalize(Unwrap(b))
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, aStr := asString(a)
	bs, bStr := asString(b)
	if aStr && bStr {
		return as == bs
	}
	switch a.(type) {
	case float64, bool, string, Marker:
		switch b.(type) {
		case float64, bool, string, Marker:
			return ToNumber(a) == ToNumber(b)
		}
	}
	return reflect.DeepEqual(a, b)
}

// StrictEqual compares without coercion.
func StrictEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	as, aStr := asString(a)
	bs, bStr := asString(b)
	if aStr && bStr {
		return as == bs
	}
	return reflect.DeepEqual(a, b)
}

// SortedKeys returns map keys in a stable order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TypeName reports the JSON type name used by schemas.
func TypeName(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string, Marker:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", x)
	}
}
