package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/racer-model/racer/path"
	"github.com/racer-model/racer/tree"
)

// SharedState is the backing store two or more Memory instances can
// share, modeling the "many clients, one backend" topology spec.md §8
// scenario f exercises: construct one SharedState, hand it to NewMemory
// for each simulated client, and ops submitted through one are fanned
// out to every other client's subscribers.
type SharedState struct {
	mu        sync.Mutex
	docs      *tree.Tree
	docSubs   map[string][]func(Op)
	querySubs map[string][]ResultsCallback
}

// NewSharedState returns an empty backing store.
func NewSharedState() *SharedState {
	return &SharedState{
		docs:      tree.New(),
		docSubs:   map[string][]func(Op){},
		querySubs: map[string][]ResultsCallback{},
	}
}

// Memory is an in-process DocStore reference implementation. It is a
// test double, not a production backend: op submission acks
// synchronously and there is no persistence, auth, or network
// boundary. Construct several Memory values over one shared
// SharedState to simulate multiple clients converging on one backend.
type Memory struct {
	shared *SharedState
}

// NewMemory returns a Memory backed by shared. Passing nil gives the
// Memory its own private, unshared backing store.
func NewMemory(shared *SharedState) *Memory {
	if shared == nil {
		shared = NewSharedState()
	}
	return &Memory{shared: shared}
}

func docKey(collection, id string) string { return collection + "." + id }

// FetchDoc implements DocStore.
func (m *Memory) FetchDoc(_ context.Context, collection, id string) (any, error) {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()
	v, ok := m.shared.docs.GetDeepCopy(path.Path{collection, id})
	if !ok {
		return nil, nil
	}
	return v, nil
}

type memSub struct {
	unsub func()
}

func (s memSub) Unsubscribe() { s.unsub() }

// SubscribeDoc implements DocStore. The initial state is delivered as
// a synthetic Op{Path: {}, OI: currentDoc} so callers can materialize
// it through the same op-application path as every subsequent update.
func (m *Memory) SubscribeDoc(_ context.Context, collection, id string, onOp func(Op)) (Subscription, error) {
	key := docKey(collection, id)
	m.shared.mu.Lock()
	current, _ := m.shared.docs.GetDeepCopy(path.Path{collection, id})
	m.shared.docSubs[key] = append(m.shared.docSubs[key], onOp)
	idx := len(m.shared.docSubs[key]) - 1
	m.shared.mu.Unlock()

	onOp(Op{Path: path.Path{}, OI: current})

	return memSub{unsub: func() {
		m.shared.mu.Lock()
		defer m.shared.mu.Unlock()
		subs := m.shared.docSubs[key]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}}, nil
}

// SubmitOp implements DocStore: applies op to the shared tree at
// collection/id+op.Path and fans it out to every live subscriber of
// collection.id (including ones registered through sibling Memory
// instances over the same SharedState), then acks callback.
func (m *Memory) SubmitOp(_ context.Context, collection, id string, op Op, callback OpCallback) {
	full := append(path.Path{collection, id}, op.Path...)

	m.shared.mu.Lock()
	err := applyOp(m.shared.docs, full, op)
	var subs []func(Op)
	if err == nil {
		subs = append(subs, m.shared.docSubs[docKey(collection, id)]...)
	}
	m.shared.mu.Unlock()

	if err != nil {
		if callback != nil {
			callback(errors.Wrap(err, "racer/docstore: submit op"))
		}
		return
	}
	for _, sub := range subs {
		if sub != nil {
			sub(op)
		}
	}
	if callback != nil {
		callback(nil)
	}
}

func applyOp(t *tree.Tree, full path.Path, op Op) error {
	switch {
	case op.IsListInsert():
		idx, ok := full[len(full)-1].(int)
		if !ok {
			return errors.Wrapf(tree.ErrNotAnArray, "list insert at %s needs an index segment", full.String())
		}
		_, err := t.SpliceAt(full[:len(full)-1], idx, 0, []any{op.LI})
		return err
	case op.IsListDelete():
		idx, ok := full[len(full)-1].(int)
		if !ok {
			return errors.Wrapf(tree.ErrNotAnArray, "list delete at %s needs an index segment", full.String())
		}
		_, err := t.SpliceAt(full[:len(full)-1], idx, 1, nil)
		return err
	case op.IsMove():
		// Move ops are accepted and ignored: the shared tree is left
		// unchanged. The racer Mutator never emits an lm op.
		return nil
	case op.IsIncrement():
		_, err := t.IncrementAt(full, *op.NA)
		return err
	case op.IsDelete():
		_, err := t.DelAt(full)
		return err
	default:
		// Set or replace: oi (with or without od) simply writes.
		_, err := t.SetAt(full, op.OI)
		return err
	}
}

// FetchQuery implements DocStore with a minimal equality-filter query
// language: expression, if a map[string]any, matches documents whose
// fields equal every entry; any other expression matches every
// document in the collection. This is a test double, not the query
// planner spec.md §1 places out of scope.
func (m *Memory) FetchQuery(_ context.Context, collection string, expression, _ any, onResults ResultsCallback) {
	ids := m.matchQuery(collection, expression)
	onResults(ids, nil)
}

// SubscribeQuery implements DocStore; like SubscribeDoc it delivers the
// current result set immediately. Later changes to the collection are
// not re-delivered: SubmitOp notifies doc subscribers only, never query
// subscribers.
func (m *Memory) SubscribeQuery(ctx context.Context, collection string, expression, options any, onResults ResultsCallback) (Subscription, error) {
	key := "query:" + collection
	m.shared.mu.Lock()
	m.shared.querySubs[key] = append(m.shared.querySubs[key], onResults)
	idx := len(m.shared.querySubs[key]) - 1
	m.shared.mu.Unlock()

	m.FetchQuery(ctx, collection, expression, options, onResults)

	return memSub{unsub: func() {
		m.shared.mu.Lock()
		defer m.shared.mu.Unlock()
		subs := m.shared.querySubs[key]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}}, nil
}

func (m *Memory) matchQuery(collection string, expression any) []string {
	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	v, ok := m.shared.docs.Lookup(path.Path{collection})
	if !ok {
		return nil
	}
	col, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	filter, isFilter := expression.(map[string]any)
	var ids []string
	for id, doc := range col {
		if isFilter && !matchesFilter(doc, filter) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func matchesFilter(doc any, filter map[string]any) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	for k, want := range filter {
		if !tree.DeepEqual(m[k], want) {
			return false
		}
	}
	return true
}
