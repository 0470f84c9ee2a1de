// Package dyno works with dynamically typed document values: the
// map[string]any / []any / scalar trees produced by decoding JSON.
package dyno

import (
	"reflect"
	"strconv"
	"strings"
)

// Lookup walks path through v. Map steps use the segment as a key and list
// steps parse it as an index. Any missing key, bad index or non-container
// value along the way reports false.
func Lookup(v any, path []string) (any, bool) {
	cur := v
	for _, part := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Number converts any Go numeric kind to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Equal reports whether a and b hold the same value. Numbers compare by
// value regardless of their Go type, so 1 and 1.0 are equal.
func Equal(a, b any) bool {
	fa, aok := Number(a)
	fb, bok := Number(b)
	if aok && bok {
		return fa == fb
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two numbers or two strings. Any other pairing is not
// ordered and reports false.
func Compare(a, b any) (int, bool) {
	fa, aok := Number(a)
	fb, bok := Number(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// Copy returns a deep copy of a document value tree. Scalars are returned
// as is.
func Copy(v any) any {
	switch node := v.(type) {
	case map[string]any:
		return CopyMap(node)
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Copy(item)
		}
		return out
	}
	return v
}

// CopyMap deep copies a single document field mapping.
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = Copy(item)
	}
	return out
}
