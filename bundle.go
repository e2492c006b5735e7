package racer

import (
	"strings"

	"github.com/racer-model/racer/loader"
	"github.com/racer-model/racer/path"
	"github.com/racer-model/racer/query"
	"github.com/racer-model/racer/snapshot"
)

// Ref registers a caller-declared alias from one path to another (e.g.
// "currentUser" -> "users.42") so it survives a Bundle/Unbundle round
// trip; Racer does not itself resolve or dereference refs, matching
// SPEC_FULL.md's decision to keep refs/refLists/filters/fns as
// caller-populated records rather than a derived-view engine.
func (m *Model) Ref(from, to any) error {
	f, err := path.Canonicalize(nil, from)
	if err != nil {
		return newError(KindInvalidPath, "ref", nil, err)
	}
	t, err := path.Canonicalize(nil, to)
	if err != nil {
		return newError(KindInvalidPath, "ref", nil, err)
	}
	m.refs = append(m.refs, snapshot.RefSpec{From: f, To: t})
	return nil
}

// RefList registers a caller-declared alias from a path to a query's
// result set.
func (m *Model) RefList(from any, q *Query) error {
	f, err := path.Canonicalize(nil, from)
	if err != nil {
		return newError(KindInvalidPath, "refList", nil, err)
	}
	m.refLists = append(m.refLists, snapshot.RefListSpec{
		From:       f,
		Collection: q.handle.Collection,
		QueryHash:  q.handle.Hash(),
		Expression: q.handle.Expression,
		Options:    q.handle.Options,
	})
	return nil
}

// Filter registers a named, caller-declared predicate over a
// collection, carried opaquely through Bundle/Unbundle.
func (m *Model) Filter(name, collection string, expr any) {
	m.filters = append(m.filters, snapshot.FilterSpec{Name: name, Collection: collection, Expr: expr})
}

// Fn registers a named, caller-declared derived-value function
// reference, carried opaquely through Bundle/Unbundle.
func (m *Model) Fn(name string, args []string) {
	m.fns = append(m.fns, snapshot.FnSpec{Name: name, Args: args})
}

// Bundle produces a snapshot of this Model's tree, every registered
// ref/refList/filter/fn, and each known context's doc/query reference
// counts, per spec.md §4.8.
func (m *Model) Bundle() *snapshot.Bundle {
	b := &snapshot.Bundle{
		Tree:     m.tree.MarshalRoot(),
		Refs:     append([]snapshot.RefSpec{}, m.refs...),
		RefLists: append([]snapshot.RefListSpec{}, m.refLists...),
		Filters:  append([]snapshot.FilterSpec{}, m.filters...),
		Fns:      append([]snapshot.FnSpec{}, m.fns...),
	}
	for id := range m.contextIDs {
		fetches, subs := m.coord.ContextItems(id)
		b.Contexts = append(b.Contexts, snapshot.ContextSnapshot{
			Name:    id,
			Fetches: itemKeyStrings(fetches),
			Subs:    itemKeyStrings(subs),
		})
	}
	return b
}

func itemKeyStrings(keys []loader.ItemKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// Unbundle replaces this Model's entire state with b's: the tree is
// swapped wholesale, registered refs/refLists/filters/fns are
// replaced, and doc-reference fetches/subscribes recorded per context
// are re-initiated so residency matches what was bundled. Query
// references are only re-initiated when their itemKey corresponds to a
// RefList carried in the same bundle — an itemKey's query hash alone
// cannot be inverted back into the (expression, options) SubscribeQuery
// needs.
func (m *Model) Unbundle(b *snapshot.Bundle) error {
	if b == nil {
		return newError(KindCorruptBundle, "unbundle", nil, nil)
	}
	m.tree.Load(b.Tree)
	m.refs = append([]snapshot.RefSpec{}, b.Refs...)
	m.refLists = append([]snapshot.RefListSpec{}, b.RefLists...)
	m.filters = append([]snapshot.FilterSpec{}, b.Filters...)
	m.fns = append([]snapshot.FnSpec{}, b.Fns...)

	queryByHash := map[string]*query.Handle{}
	for _, rl := range b.RefLists {
		queryByHash[rl.QueryHash] = query.New(rl.Collection, rl.Expression, rl.Options)
	}

	for _, cs := range b.Contexts {
		m.touchContext(cs.Name)
		h := &Handle{model: m, path: path.Path{}, contextID: cs.Name}
		for _, key := range cs.Fetches {
			m.reinitiate(h, key, queryByHash, false)
		}
		for _, key := range cs.Subs {
			m.reinitiate(h, key, queryByHash, true)
		}
	}
	return nil
}

func (m *Model) reinitiate(h *Handle, key string, queryByHash map[string]*query.Handle, subscribe bool) {
	switch {
	case strings.HasPrefix(key, "doc:"):
		rest := strings.TrimPrefix(key, "doc:")
		dot := strings.IndexByte(rest, '.')
		if dot < 0 {
			return
		}
		collection, id := rest[:dot], rest[dot+1:]
		ref := docRef{collection: collection, id: id}
		loadKey := loader.DocKey(collection, id)
		loadFn := m.docLoadFunc(ref, subscribe)
		if subscribe {
			m.coord.Subscribe(h.contextID, loadKey, loadFn, nil)
		} else {
			m.coord.Fetch(h.contextID, loadKey, loadFn, nil)
		}
	case strings.HasPrefix(key, "query:"):
		parts := strings.SplitN(strings.TrimPrefix(key, "query:"), ":", 2)
		if len(parts) != 2 {
			return
		}
		qh, ok := queryByHash[parts[1]]
		if !ok {
			return
		}
		loadKey := loader.QueryKey(qh.Collection, qh.Hash())
		loadFn := m.queryLoadFunc(qh, subscribe)
		if subscribe {
			m.coord.Subscribe(h.contextID, loadKey, loadFn, nil)
		} else {
			m.coord.Fetch(h.contextID, loadKey, loadFn, nil)
		}
	}
	m.coord.Drain()
}
