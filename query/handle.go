// Package query implements QueryHandle, the stable-hash identity
// spec.md §4.7 gives a (collection, expression, options) triple so
// repeated calls with structurally-equal arguments share one
// LoadCoordinator item and one cached result set.
package query

import (
	"reflect"

	"github.com/ohler55/ojg/oj"
)

// Handle identifies one query. Two Handles built from
// structurally-equal (collection, expression, options) compare equal
// via Hash, regardless of map key order or which Go value originally
// produced them.
type Handle struct {
	Collection string
	Expression any
	Options    any
	hash       string
}

// New builds a Handle and precomputes its stable hash.
func New(collection string, expression, options any) *Handle {
	h := &Handle{Collection: collection, Expression: expression, Options: options}
	h.hash = StableHash(collection, expression, options)
	return h
}

// Hash returns the precomputed stable hash, suitable as a
// loader.QueryKey or a result-cache key.
func (h *Handle) Hash() string { return h.hash }

// StableHash produces a deterministic string for (collection,
// expression, options): equal inputs (up to map key order) always
// produce the same string, and structurally different inputs produce
// different strings with overwhelming probability. Built on ojg's
// sorted-key JSON writer.
func StableHash(collection string, expression, options any) string {
	payload := map[string]any{
		"collection": collection,
		"expression": canonicalize(expression),
		"options":    canonicalize(options),
	}
	b, err := oj.Marshal(payload, &oj.Options{Sort: true})
	if err != nil {
		// payload is built entirely from canonicalize's output (maps,
		// slices, and JSON scalars), which oj always marshals; this
		// path is unreachable in practice.
		return ""
	}
	return string(b)
}

// canonicalize walks v, converting maps to map[string]any (ojg sorts
// keys during marshal but only recognizes a handful of concrete map
// types) and leaving everything else as-is so two equivalent values
// built through different code paths marshal identically.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalize(val)
		}
		return out
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = canonicalize(iter.Value().Interface())
		}
		return out
	}
}

// Result is a query's materialized result set: matching document ids
// in backend order, and an optional Extra payload some backends attach
// (e.g. a total count) per spec.md §4.7's getExtra().
type Result struct {
	Ids   []string
	Extra any
}

// Get returns the ids currently in the result set, in the same order
// the backend supplied them. The underlying slice is never mutated in
// place; callers get their own copy.
func (r Result) Get() []string {
	out := make([]string, len(r.Ids))
	copy(out, r.Ids)
	return out
}

// GetExtra returns the backend-supplied side payload, or nil.
func (r Result) GetExtra() any { return r.Extra }
