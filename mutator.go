package racer

import (
	"context"
	"errors"

	"github.com/racer-model/racer/docstore"
	"github.com/racer-model/racer/events"
	"github.com/racer-model/racer/path"
	"github.com/racer-model/racer/tree"
)

// publish is the shared tail of every mutation's pipeline (spec.md
// §4.4 steps 5-7): emit the local event, forward the wire op to
// DocStore if opPath addresses inside a document, then invoke cb once
// the submission settles (or immediately for a local-only path).
// eventPath and opPath coincide for scalar mutations (set/del/
// increment) and diverge for array mutations, where the event is
// reported at the array's own path but the JSON0 op addresses the
// specific element index.
func (m *Model) publish(h *Handle, eventPath path.Path, kind events.Kind, value, previous any, opPath path.Path, op docstore.Op, cb docstore.OpCallback) {
	m.bus.Emit(events.Event{
		Kind:         kind,
		Path:         eventPath,
		Value:        value,
		Previous:     previous,
		Passed:       h.pass,
		Silent:       h.silent,
		EventContext: h.eventContext,
	})
	m.forward(opPath, op, cb)
	m.coord.Drain()
}

func (m *Model) forward(full path.Path, op docstore.Op, cb docstore.OpCallback) {
	collection, id, rest, ok := splitDocAddress(full)
	if !ok || m.store == nil {
		if cb != nil {
			cb(nil)
		}
		return
	}
	op.Path = rest
	m.store.SubmitOp(context.Background(), collection, id, op, func(err error) {
		if err != nil {
			err = newError(KindBackendError, "submit", full, err)
		}
		if cb != nil {
			cb(err)
		} else if err != nil {
			m.reportErr(err)
		}
		m.coord.Drain()
	})
}

func translateTreeErr(op string, p path.Path, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tree.ErrPathTypeMismatch):
		return newError(KindPathTypeMismatch, op, p, err)
	case errors.Is(err, tree.ErrNotAnArray):
		return newError(KindNotAnArray, op, p, err)
	case errors.Is(err, tree.ErrNotANumber):
		return newError(KindNotANumber, op, p, err)
	default:
		return newError(KindBackendError, op, p, err)
	}
}

// Set writes value at sub and returns the previous value.
func (m *Model) set(h *Handle, sub any, value any, cb docstore.OpCallback) (any, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, newError(KindInvalidPath, "set", nil, err)
	}
	previous, err := m.tree.SetAt(full, value)
	if err != nil {
		return nil, translateTreeErr("set", full, err)
	}
	op := docstore.Op{OI: value}
	if previous != nil {
		op.OD = previous
	}
	m.publish(h, full, events.Change, value, previous, full, op, cb)
	return previous, nil
}

// setDiff writes value at sub only if it is not tree.StrictEqual to
// the current value, per spec.md §4.3's setDiff.
func (m *Model) setDiff(h *Handle, sub any, value any, deep bool, cb docstore.OpCallback) (any, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, newError(KindInvalidPath, "setDiff", nil, err)
	}
	current, _ := m.tree.Lookup(full)
	unchanged := tree.StrictEqual(current, value)
	if deep {
		unchanged = tree.DeepEqual(current, value)
	}
	if unchanged {
		if cb != nil {
			cb(nil)
		}
		return current, nil
	}
	return m.set(h, sub, value, cb)
}

// setNull writes value at sub only if the current value is absent or
// null, per spec.md §4.3's setNull.
func (m *Model) setNull(h *Handle, sub any, value any, cb docstore.OpCallback) (any, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, newError(KindInvalidPath, "setNull", nil, err)
	}
	current, exists := m.tree.Lookup(full)
	if exists && current != nil {
		if cb != nil {
			cb(nil)
		}
		return current, nil
	}
	return m.set(h, sub, value, cb)
}

// del removes the value at sub and returns it; a no-op if nothing was
// there.
func (m *Model) del(h *Handle, sub any, cb docstore.OpCallback) (any, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, newError(KindInvalidPath, "del", nil, err)
	}
	_, existed := m.tree.Lookup(full)
	if !existed {
		if cb != nil {
			cb(nil)
		}
		return nil, nil
	}
	previous, err := m.tree.DelAt(full)
	if err != nil {
		return nil, translateTreeErr("del", full, err)
	}
	op := docstore.Op{OD: previous}
	m.publish(h, full, events.Remove, nil, previous, full, op, cb)
	return previous, nil
}

// add assigns collection/id (generating an id via racer ID generation
// if doc carries none) and writes doc there, returning the id.
func (m *Model) add(h *Handle, collection string, doc map[string]any, cb docstore.OpCallback) (string, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		id = NewID()
		clone := make(map[string]any, len(doc)+1)
		for k, v := range doc {
			clone[k] = v
		}
		clone["id"] = id
		doc = clone
	}
	full := path.Path{collection, id}
	previous, err := m.tree.SetAt(full, doc)
	if err != nil {
		return "", translateTreeErr("add", full, err)
	}
	op := docstore.Op{OI: doc}
	if previous != nil {
		op.OD = previous
	}
	m.publish(h, full, events.Change, doc, previous, full, op, cb)
	return id, nil
}

// increment adds delta to the number at sub (defaulting the missing
// case to 0) and returns the new value.
func (m *Model) increment(h *Handle, sub any, delta float64, cb docstore.OpCallback) (float64, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return 0, newError(KindInvalidPath, "increment", nil, err)
	}
	newVal, err := m.tree.IncrementAt(full, delta)
	if err != nil {
		return 0, translateTreeErr("increment", full, err)
	}
	d := delta
	op := docstore.Op{NA: &d}
	m.publish(h, full, events.Change, newVal, newVal-delta, full, op, cb)
	return newVal, nil
}

func arrayLength(v any) int {
	arr, ok := v.([]any)
	if !ok {
		return 0
	}
	return len(arr)
}

// push appends item to the array at sub (synthesizing an empty array
// there first if absent) and returns the new length.
func (m *Model) push(h *Handle, sub any, item any, cb docstore.OpCallback) (int, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return 0, newError(KindInvalidPath, "push", nil, err)
	}
	cur, _ := m.tree.Lookup(full)
	index := arrayLength(cur)
	if _, err := m.tree.SpliceAt(full, index, 0, []any{item}); err != nil {
		return 0, translateTreeErr("push", full, err)
	}
	newArr, _ := m.tree.Lookup(full)
	length := arrayLength(newArr)

	elemPath := full.Append(path.Path{index})
	op := docstore.Op{LI: item}
	m.publish(h, full, events.Insert, item, nil, elemPath, op, cb)
	return length, nil
}

// insert splices items into the array at sub starting at index and
// returns the new length.
func (m *Model) insert(h *Handle, sub any, index int, items []any, cb docstore.OpCallback) (int, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return 0, newError(KindInvalidPath, "insert", nil, err)
	}
	if _, err := m.tree.SpliceAt(full, index, 0, items); err != nil {
		return 0, translateTreeErr("insert", full, err)
	}
	newArr, _ := m.tree.Lookup(full)
	length := arrayLength(newArr)

	for i, item := range items {
		elemPath := full.Append(path.Path{index + i})
		op := docstore.Op{LI: item}
		var itemCb docstore.OpCallback
		if i == len(items)-1 {
			itemCb = cb
		}
		m.publish(h, full, events.Insert, item, nil, elemPath, op, itemCb)
	}
	return length, nil
}

// remove splices up to count elements starting at index out of the
// array at sub and returns the removed elements.
func (m *Model) remove(h *Handle, sub any, index, count int, cb docstore.OpCallback) ([]any, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, newError(KindInvalidPath, "remove", nil, err)
	}
	removed, err := m.tree.SpliceAt(full, index, count, nil)
	if err != nil {
		return nil, translateTreeErr("remove", full, err)
	}
	for i, item := range removed {
		elemPath := full.Append(path.Path{index})
		op := docstore.Op{LD: item}
		var itemCb docstore.OpCallback
		if i == len(removed)-1 {
			itemCb = cb
		}
		m.publish(h, full, events.Remove, nil, item, elemPath, op, itemCb)
	}
	if len(removed) == 0 && cb != nil {
		cb(nil)
	}
	return removed, nil
}

