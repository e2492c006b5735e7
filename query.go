package racer

import (
	"github.com/racer-model/racer/loader"
	"github.com/racer-model/racer/path"
	"github.com/racer-model/racer/query"
)

// Query is the client-side handle over a remote query described in
// spec.md §4.7: identity is (collection, expression, options); its
// result set lives on the owning Model and is kept current by
// Fetch/Subscribe, which delegate to the LoadCoordinator exactly like
// a doc reference does.
type Query struct {
	model     *Model
	handle    *query.Handle
	contextID string
}

// Hash returns the query's stable identity string.
func (q *Query) Hash() string { return q.handle.Hash() }

// GetIds returns the query's currently materialized document ids.
func (q *Query) GetIds() []string {
	res, ok := q.model.queryRes[q.handle.Hash()]
	if !ok {
		return nil
	}
	return res.Get()
}

// Get returns the query's currently materialized documents, in the
// same order as GetIds, by deep-copying each from the Model's tree.
func (q *Query) Get() []any {
	ids := q.GetIds()
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		v, ok := q.model.tree.GetDeepCopy(q.docPath(id))
		if ok {
			out = append(out, v)
		}
	}
	return out
}

// GetExtra returns backend-supplied metadata alongside the result set
// (e.g. a total count), or nil.
func (q *Query) GetExtra() any {
	res, ok := q.model.queryRes[q.handle.Hash()]
	if !ok {
		return nil
	}
	return res.Extra
}

func (q *Query) docPath(id string) path.Path { return path.Path{q.handle.Collection, id} }

// Fetch issues a one-shot load of this query's result set.
func (q *Query) Fetch(cb func(error)) {
	key := loader.QueryKey(q.handle.Collection, q.handle.Hash())
	q.model.coord.Fetch(q.contextID, key, q.model.queryLoadFunc(q.handle, false), cb)
	q.model.coord.Drain()
}

// Subscribe keeps this query's result set current until Unsubscribe.
func (q *Query) Subscribe(cb func(error)) {
	key := loader.QueryKey(q.handle.Collection, q.handle.Hash())
	q.model.coord.Subscribe(q.contextID, key, q.model.queryLoadFunc(q.handle, true), cb)
	q.model.coord.Drain()
}

// Unfetch releases this query's fetch reference.
func (q *Query) Unfetch() {
	key := loader.QueryKey(q.handle.Collection, q.handle.Hash())
	q.model.coord.Unfetch(q.contextID, key)
	q.model.coord.Drain()
}

// Unsubscribe releases this query's subscribe reference.
func (q *Query) Unsubscribe() {
	key := loader.QueryKey(q.handle.Collection, q.handle.Hash())
	q.model.coord.Unsubscribe(q.contextID, key)
	q.model.coord.Drain()
}
