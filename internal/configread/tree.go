package configread

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/golobby/cast"
)

// Tree is a parsed configuration document: an ordered set of top-level
// keys, each holding an arbitrary nested value. It is deliberately opaque
// beyond key lookup — the loader itself never interprets config content,
// only the caller-supplied object factory does.
type Tree interface {
	// Keys returns the top-level keys in lexicographic order.
	Keys() []string

	// Get returns the raw value stored under a dotted key path (e.g.
	// "external_dictionary.name"), and whether it was present.
	Get(path string) (any, bool)

	// GetString is a convenience accessor coercing the value at path to a
	// string using golobby/cast; returns "" if absent or not coercible.
	GetString(path string) string

	// Equal reports whether two trees hold the same data, used to detect
	// whether an object's configuration actually changed across a rescan.
	Equal(other Tree) bool
}

// mapTree is the shared Tree implementation behind both the YAML and TOML
// parsers: both formats decode naturally into nested
// map[string]any/[]any trees, so one accessor implementation covers both.
type mapTree struct {
	keys []string
	data map[string]any
}

// newMapTree builds a Tree from a decoded document. Neither the YAML nor
// the TOML decoder used here preserves source key order, so Keys() returns
// a lexicographic order instead: deterministic across runs, which matters
// more for this loader (reproducible collision warnings, stable tests)
// than matching the original file's byte order.
func newMapTree(data map[string]any) *mapTree {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &mapTree{keys: keys, data: data}
}

func (t *mapTree) Keys() []string { return t.keys }

func (t *mapTree) Get(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = t.data
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (t *mapTree) GetString(path string) string {
	v, ok := t.Get(path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	out, err := cast.FromType(fmt.Sprint(v), reflect.TypeOf(""))
	if err != nil {
		return ""
	}
	s, _ := out.(string)
	return s
}

func (t *mapTree) Equal(other Tree) bool {
	o, ok := other.(*mapTree)
	if !ok {
		return false
	}
	return reflect.DeepEqual(t.data, o.data)
}

// normalizeKeys deep-converts map[interface{}]interface{} (as produced by
// some YAML decoders) into map[string]any so mapTree's accessors only ever
// have to deal with one shape.
func normalizeKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeKeys(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprint(k)] = normalizeKeys(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeKeys(vv)
		}
		return out
	default:
		return v
	}
}
