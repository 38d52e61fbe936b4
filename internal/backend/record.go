package backend

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one loosely typed JSON object from the backend.
type Record = map[string]any

// listKeys is the envelope precedence used by UnwrapList.
var listKeys = []string{"records", "data", "content", "items"}

// UnwrapList extracts the list from a list-endpoint response.
//
// Precedence: a bare array, then the first array found under records,
// data, content or items. A data object is searched one level deeper so
// {"data": {"records": [...]}} also works. Anything else is empty.
// Non-object elements are dropped.
func UnwrapList(v any) []Record {
	return toRecords(unwrap(v, 2))
}

func unwrap(v any, depth int) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []Record:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	case Record:
		for _, k := range listKeys {
			if list, ok := t[k].([]any); ok {
				return list
			}
		}
		if depth > 1 {
			if inner, ok := t["data"].(Record); ok {
				return unwrap(inner, depth-1)
			}
		}
	}
	return nil
}

func toRecords(list []any) []Record {
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if r, ok := item.(Record); ok {
			out = append(out, r)
		}
	}
	return out
}

// UnwrapObject returns the payload of a {"code", "data"} style envelope,
// or the object itself when it is not enveloped.
func UnwrapObject(v any) Record {
	r, ok := v.(Record)
	if !ok {
		return nil
	}
	inner, ok := r["data"].(Record)
	if !ok {
		return r
	}
	if _, hasCode := r["code"]; hasCode {
		return inner
	}
	if _, hasSuccess := r["success"]; hasSuccess {
		return inner
	}
	return r
}

// Lookup returns the first value under keys that is present, non-null and
// not an empty string.
func Lookup(r Record, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// String resolves keys in order and renders the value as a string.
// Numbers are formatted without exponent so numeric IDs survive.
func String(r Record, keys ...string) (string, bool) {
	v, ok := Lookup(r, keys...)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Float resolves keys and coerces numbers and numeric strings.
func Float(r Record, keys ...string) (float64, bool) {
	v, ok := Lookup(r, keys...)
	if !ok {
		return 0, false
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int is Float truncated toward zero, saturating at the int range.
func Int(r Record, keys ...string) (int, bool) {
	f, ok := Float(r, keys...)
	switch {
	case !ok:
		return 0, false
	case f >= math.MaxInt:
		return math.MaxInt, true
	case f <= math.MinInt:
		return math.MinInt, true
	}
	return int(f), true
}

// Bool resolves keys and accepts booleans, 0/1 and "true"/"false".
func Bool(r Record, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case float64:
			return t != 0, true
		case int:
			return t != 0, true
		case json.Number:
			return t.String() != "0", true
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// Object returns the nested object under key, or nil.
func Object(r Record, key string) Record {
	inner, _ := r[key].(Record)
	return inner
}

// List returns the nested array under key, or nil.
func List(r Record, key string) []any {
	list, _ := r[key].([]any)
	return list
}

// Strings returns the string elements of the array under any of keys.
func Strings(r Record, keys ...string) []string {
	for _, k := range keys {
		list, ok := r[k].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, isStr := item.(string); isStr {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
