// Package tree implements Racer's in-memory document store: a
// collection -> id -> document map of pure JSON values, addressed by
// canonical path.Path, with copy-on-write semantics at every mutation
// point so that aliases handed out by Lookup/GetCopy remain valid
// snapshots of the state at the time they were taken.
package tree

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/pkg/errors"

	"github.com/racer-model/racer/path"
)

// Sentinel errors for the shape-mismatch failures documented in
// spec.md §7. Callers compare with errors.Is.
var (
	ErrPathTypeMismatch = errors.New("racer/tree: write through a scalar intermediate")
	ErrNotAnArray       = errors.New("racer/tree: target is not an array")
	ErrNotANumber       = errors.New("racer/tree: target is not a number")
)

// Tree is the in-memory document store. The zero value is not usable;
// construct with New. A Tree is not safe for concurrent use — per
// spec.md §5 the core assumes a single logical event loop.
type Tree struct {
	root any
}

// New returns an empty Tree whose root is an empty collection map.
func New() *Tree {
	return &Tree{root: map[string]any{}}
}

// Lookup returns the live value at p, or (nil, false) if nothing is
// stored there. The returned value, if a map or slice, aliases the
// tree's own storage: callers must not mutate it.
func (t *Tree) Lookup(p path.Path) (any, bool) {
	cur := t.root
	for _, seg := range p {
		next, ok := descend(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func descend(cur any, seg path.Segment) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		key, ok := seg.(string)
		if !ok {
			return nil, false
		}
		v, exists := c[key]
		return v, exists
	case []any:
		idx, ok := seg.(int)
		if !ok || idx < 0 || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}

// GetCopy returns a shallow copy of the value at p: a new map or slice
// header over the same immediate children, primitives and times
// returned by value. Returns (nil, false) if absent.
func (t *Tree) GetCopy(p path.Path) (any, bool) {
	v, ok := t.Lookup(p)
	if !ok {
		return nil, false
	}
	return shallowCopy(v), true
}

func shallowCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, child := range c {
			out[k] = child
		}
		return out
	case []any:
		out := make([]any, len(c))
		copy(out, c)
		return out
	case time.Time:
		return c
	default:
		return v
	}
}

// GetDeepCopy returns a fully recursive structural copy of the value
// at p. Returns (nil, false) if absent.
func (t *Tree) GetDeepCopy(p path.Path) (any, bool) {
	v, ok := t.Lookup(p)
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

func deepCopy(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, child := range c {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, child := range c {
			out[i] = deepCopy(child)
		}
		return out
	case time.Time:
		return c
	default:
		return v
	}
}

// SetAt writes value at p, creating intermediate maps for missing
// mapping segments and a one-element array for a missing integer
// segment 0, and returns the previous value (nil if there was none). It
// fails with ErrPathTypeMismatch if an existing intermediate is a
// scalar, and with ErrNotAnArray for an index at or past the end of an
// existing array or a non-zero index into an absent one.
func (t *Tree) SetAt(p path.Path, value any) (previous any, err error) {
	if len(p) == 0 {
		previous = t.root
		t.root = value
		return previous, nil
	}
	newRoot, prev, err := setAt(t.root, p, value)
	if err != nil {
		return nil, err
	}
	t.root = newRoot
	return prev, nil
}

// setAt recursively rebuilds the container chain down to segs, placing
// value at the end, and returns the updated container plus whatever
// value previously lived at the full path.
func setAt(cur any, segs path.Path, value any) (newCur any, previous any, err error) {
	if len(segs) == 0 {
		return value, cur, nil
	}

	seg, rest := segs[0], segs[1:]
	switch s := seg.(type) {
	case string:
		m, wasMap := cur.(map[string]any)
		if !wasMap {
			if cur != nil {
				return nil, nil, errors.Wrapf(ErrPathTypeMismatch, "segment %q: intermediate is %T, not an object", s, cur)
			}
			m = map[string]any{}
		} else {
			clone := make(map[string]any, len(m))
			for k, v := range m {
				clone[k] = v
			}
			m = clone
		}
		child := m[s]
		newChild, prev, err := setAt(child, rest, value)
		if err != nil {
			return nil, nil, err
		}
		m[s] = newChild
		return m, prev, nil

	case int:
		arr, wasArr := cur.([]any)
		switch {
		case wasArr:
			// Out-of-range writes that extend an array are disallowed: only
			// push/insert define the semantics for growing one.
			if s < 0 || s >= len(arr) {
				return nil, nil, errors.Wrapf(ErrNotAnArray, "index %d is out of range for array of length %d; only push/insert extend arrays", s, len(arr))
			}
			clone := make([]any, len(arr))
			copy(clone, arr)
			arr = clone
		case cur == nil:
			if s != 0 {
				return nil, nil, errors.Wrapf(ErrNotAnArray, "index %d on an absent array; only index 0 synthesizes a new array", s)
			}
			arr = make([]any, 1)
		default:
			return nil, nil, errors.Wrapf(ErrPathTypeMismatch, "integer segment %d: intermediate is %T, not an array", s, cur)
		}

		newChild, prev, err := setAt(arr[s], rest, value)
		if err != nil {
			return nil, nil, err
		}
		arr[s] = newChild
		return arr, prev, nil

	default:
		return nil, nil, errors.Wrapf(ErrPathTypeMismatch, "unsupported segment type %T", seg)
	}
}

// DelAt removes the value at p and returns it; a no-op (nil, nil) if
// nothing was there. Deleting an array element shifts subsequent
// elements down, equivalent to SpliceAt(parent, index, 1, nil).
func (t *Tree) DelAt(p path.Path) (previous any, err error) {
	if len(p) == 0 {
		previous = t.root
		t.root = map[string]any{}
		return previous, nil
	}
	parentPath, last := p[:len(p)-1], p[len(p)-1]
	parent, ok := t.Lookup(parentPath)
	if !ok {
		return nil, nil
	}
	switch c := parent.(type) {
	case map[string]any:
		key, ok := last.(string)
		if !ok {
			return nil, nil
		}
		old, exists := c[key]
		if !exists {
			return nil, nil
		}
		clone := make(map[string]any, len(c))
		for k, v := range c {
			clone[k] = v
		}
		delete(clone, key)
		if _, err := t.SetAt(parentPath, clone); err != nil {
			return nil, err
		}
		return old, nil
	case []any:
		idx, ok := last.(int)
		if !ok || idx < 0 || idx >= len(c) {
			return nil, nil
		}
		removed, err := t.SpliceAt(parentPath, idx, 1, nil)
		if err != nil {
			return nil, err
		}
		if len(removed) == 0 {
			return nil, nil
		}
		return removed[0], nil
	default:
		return nil, nil
	}
}

// SpliceAt splices the array addressed by p: removes up to howMany
// elements starting at index and inserts items in their place,
// returning the removed elements. If nothing exists at p, an empty
// array is synthesized first (creating mapping ancestors as needed).
// Fails with ErrNotAnArray if the resolved target is not an array.
func (t *Tree) SpliceAt(p path.Path, index, howMany int, items []any) (removed []any, err error) {
	cur, ok := t.Lookup(p)
	if !ok {
		if _, err := t.SetAt(p, []any{}); err != nil {
			return nil, err
		}
		cur = []any{}
	}
	arr, ok := cur.([]any)
	if !ok {
		return nil, errors.Wrapf(ErrNotAnArray, "path %s resolves to %T", p.String(), cur)
	}
	if index < 0 || index > len(arr) {
		return nil, errors.Wrapf(ErrNotAnArray, "splice index %d out of range for length %d", index, len(arr))
	}
	if howMany < 0 {
		howMany = 0
	}
	end := index + howMany
	if end > len(arr) {
		end = len(arr)
	}
	removed = make([]any, end-index)
	copy(removed, arr[index:end])

	out := make([]any, 0, len(arr)-len(removed)+len(items))
	out = append(out, arr[:index]...)
	out = append(out, items...)
	out = append(out, arr[end:]...)

	if _, err := t.SetAt(p, out); err != nil {
		return nil, err
	}
	return removed, nil
}

// IncrementAt sets the number at p to old+delta, treating a missing
// value as 0, and returns the new value. Fails with ErrNotANumber if a
// non-number value is present.
func (t *Tree) IncrementAt(p path.Path, delta float64) (float64, error) {
	cur, ok := t.Lookup(p)
	var old float64
	if ok {
		n, isNum := toFloat(cur)
		if !isNum {
			return 0, errors.Wrapf(ErrNotANumber, "path %s holds %T", p.String(), cur)
		}
		old = n
	}
	next := old + delta
	if _, err := t.SetAt(p, next); err != nil {
		return 0, err
	}
	return next, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// StrictEqual implements the "reference or identical primitive" test
// setDiff uses: identical primitives (NaN === NaN is true), identical
// map/slice references, identical Dates by time value. Any two empty
// arrays also count as strictly equal.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if av != av && bv != bv { // both NaN
			return true
		}
		return av == bv
	case string, bool, int:
		return a == b
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		return reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	case []any:
		bv, ok := b.([]any)
		if !ok {
			return false
		}
		if len(av) == 0 && len(bv) == 0 {
			return true
		}
		if len(av) != len(bv) {
			return false
		}
		return reflect.ValueOf(av).Pointer() == reflect.ValueOf(bv).Pointer()
	default:
		return false
	}
}

// DeepEqual implements setDiffDeep's predicate: recursive structural
// equality over JSON values, arrays compared element-wise, mappings by
// identical key sets with deep-equal values, Dates by time value.
func DeepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, exists := bv[k]
			if !exists || !DeepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !DeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if av != av && bv != bv {
			return true
		}
		return av == bv
	default:
		return reflect.DeepEqual(a, b)
	}
}

// MarshalRoot returns a deep copy of the tree's root as plain
// map[string]any/[]any/primitives, suitable for JSON encoding by the
// snapshot package (used by Model.Bundle).
func (t *Tree) MarshalRoot() any {
	return deepCopy(t.root)
}

// Load replaces the tree's root wholesale, used by Model.Unbundle.
// The value passed in is taken by reference; callers must not retain a
// mutable alias to it afterwards.
func (t *Tree) Load(root any) {
	t.root = root
}

// RoundTripJSON normalizes a Go value (e.g. a caller-constructed
// map[string]int) into the map[string]any/[]any/float64 shape the tree
// stores everything as, mirroring how encoding/json decodes into any.
func RoundTripJSON(v any) (any, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "racer/tree: marshal for round-trip")
	}
	var out any
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, errors.Wrap(err, "racer/tree: unmarshal for round-trip")
	}
	return out, nil
}
