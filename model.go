package racer

import (
	"context"
	"fmt"

	"github.com/racer-model/racer/config"
	"github.com/racer-model/racer/docstore"
	"github.com/racer-model/racer/events"
	"github.com/racer-model/racer/loader"
	"github.com/racer-model/racer/path"
	"github.com/racer-model/racer/query"
	"github.com/racer-model/racer/snapshot"
	"github.com/racer-model/racer/tree"
)

// Model owns one root's tree, event bus, LoadCoordinator, and the
// DocStore it talks to. Every Handle is a lightweight view over a
// Model; the Model is the only thing holding mutable state. Two
// Models never share a Tree — only a DocStore, as spec.md §5 notes.
type Model struct {
	tree  *tree.Tree
	bus   *events.Bus
	store docstore.DocStore
	coord *loader.Coordinator
	cfg   *config.Config

	docSubs    map[loader.ItemKey]docstore.Subscription
	queryRes   map[string]query.Result
	contextIDs map[string]struct{}

	refs     []snapshot.RefSpec
	refLists []snapshot.RefListSpec
	filters  []snapshot.FilterSpec
	fns      []snapshot.FnSpec
}

// New constructs a Model bound to store, configured by cfg (Default()
// if nil), reporting handler panics and async errors to sink (a
// rlog.Logger satisfies events.ErrorSink; nil uses events.NopSink).
func New(store docstore.DocStore, cfg *config.Config, sink events.ErrorSink) *Model {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Model{
		tree:       tree.New(),
		store:      store,
		cfg:        cfg,
		docSubs:    map[loader.ItemKey]docstore.Subscription{},
		queryRes:   map[string]query.Result{},
		contextIDs: map[string]struct{}{},
	}
	m.bus = events.NewBus(sink)
	m.coord = loader.New(
		loader.WithUnloadDelay(cfg.UnloadDelay),
		loader.WithFetchOnly(cfg.FetchOnly),
		loader.WithWatcher(m.onTransition),
	)
	return m
}

// Root returns the root Handle, bound to Config.DefaultContext with no
// flags set.
func (m *Model) Root() *Handle {
	return &Handle{model: m, path: path.Path{}, contextID: m.cfg.DefaultContext}
}

func (m *Model) touchContext(id string) {
	m.contextIDs[id] = struct{}{}
}

func (m *Model) onTransition(key loader.ItemKey, from, to loader.State) {
	if to == loader.Absent {
		m.teardownSub(key)
	}
}

func (m *Model) teardownSub(key loader.ItemKey) {
	sub, ok := m.docSubs[key]
	if !ok {
		return
	}
	delete(m.docSubs, key)
	sub.Unsubscribe()
}

func (m *Model) registerSub(key loader.ItemKey, sub docstore.Subscription) {
	m.docSubs[key] = sub
}

// splitDocAddress reports whether full addresses inside a document
// ([collection, id, ...rest]) and, if so, returns its pieces — used
// both by the Mutator to decide whether to forward to DocStore and by
// load resolution to validate a bare doc reference.
func splitDocAddress(full path.Path) (collection, id string, rest path.Path, ok bool) {
	if len(full) < 2 {
		return "", "", nil, false
	}
	c, cok := full[0].(string)
	i, iok := full[1].(string)
	if !cok || !iok {
		return "", "", nil, false
	}
	return c, i, full[2:], true
}

type docRef struct {
	collection, id string
}

func (r docRef) path() path.Path { return path.Path{r.collection, r.id} }

func docAddressOf(h *Handle, item any) (docRef, error) {
	var p path.Path
	switch v := item.(type) {
	case nil:
		p = h.path
	case *Handle:
		p = v.path
	case path.Path:
		p = v
	case string:
		canon, err := path.Canonicalize(nil, v)
		if err != nil {
			return docRef{}, newError(KindInvalidPath, "fetch", nil, err)
		}
		p = canon
	default:
		return docRef{}, newError(KindMissingDoc, "fetch", nil, fmt.Errorf("unsupported item type %T", item))
	}
	collection, id, rest, ok := splitDocAddress(p)
	if !ok || len(rest) != 0 {
		return docRef{}, newError(KindMissingDoc, "fetch", p, fmt.Errorf("doc address needs exactly [collection, id], got %s", p.String()))
	}
	return docRef{collection: collection, id: id}, nil
}

func (m *Model) docLoadFunc(ref docRef, subscribe bool) loader.LoadFunc {
	return func(onSettled func(error)) func() {
		ctx := context.Background()
		if !subscribe {
			doc, err := m.store.FetchDoc(ctx, ref.collection, ref.id)
			if err != nil {
				onSettled(err)
				return nil
			}
			if doc != nil {
				if _, err := m.tree.SetAt(ref.path(), doc); err != nil {
					onSettled(err)
					return nil
				}
			}
			onSettled(nil)
			return nil
		}
		sub, err := m.store.SubscribeDoc(ctx, ref.collection, ref.id, func(op docstore.Op) {
			m.applyRemoteOp(ref.collection, ref.id, op)
		})
		if err != nil {
			onSettled(err)
			return nil
		}
		m.registerSub(loader.DocKey(ref.collection, ref.id), sub)
		onSettled(nil)
		return func() { sub.Unsubscribe() }
	}
}

// applyRemoteOp applies an op delivered by DocStore (via SubscribeDoc)
// to the tree and fans it out through the bus, mirroring the local
// Mutator pipeline's write+emit steps but skipping the forward-to-store
// step, since the op originated there.
func (m *Model) applyRemoteOp(collection, id string, op docstore.Op) {
	full := path.Path{collection, id}.Append(op.Path)
	switch {
	case op.IsListInsert():
		idx, ok := full[len(full)-1].(int)
		if !ok {
			m.reportErr(newError(KindNotAnArray, "remote-insert", full, nil))
			return
		}
		if _, err := m.tree.SpliceAt(full[:len(full)-1], idx, 0, []any{op.LI}); err != nil {
			m.reportErr(newError(KindBackendError, "remote-insert", full, err))
			return
		}
		m.bus.Emit(events.Event{Kind: events.Insert, Path: full, Value: op.LI})
	case op.IsListDelete():
		idx, ok := full[len(full)-1].(int)
		if !ok {
			m.reportErr(newError(KindNotAnArray, "remote-remove", full, nil))
			return
		}
		removed, err := m.tree.SpliceAt(full[:len(full)-1], idx, 1, nil)
		if err != nil {
			m.reportErr(newError(KindBackendError, "remote-remove", full, err))
			return
		}
		var prev any
		if len(removed) > 0 {
			prev = removed[0]
		}
		m.bus.Emit(events.Event{Kind: events.Remove, Path: full, Previous: prev})
	case op.IsIncrement():
		newVal, err := m.tree.IncrementAt(full, *op.NA)
		if err != nil {
			m.reportErr(newError(KindBackendError, "remote-increment", full, err))
			return
		}
		m.bus.Emit(events.Event{Kind: events.Change, Path: full, Value: newVal})
	case op.IsDelete():
		previous, err := m.tree.DelAt(full)
		if err != nil {
			m.reportErr(newError(KindBackendError, "remote-del", full, err))
			return
		}
		m.bus.Emit(events.Event{Kind: events.Remove, Path: full, Previous: previous})
	default:
		previous, err := m.tree.SetAt(full, op.OI)
		if err != nil {
			m.reportErr(newError(KindBackendError, "remote-set", full, err))
			return
		}
		m.bus.Emit(events.Event{Kind: events.Change, Path: full, Value: op.OI, Previous: previous})
	}
	m.coord.Drain()
}

func (m *Model) reportErr(err error) {
	m.bus.ReportError(err)
}

func (m *Model) queryLoadFunc(qh *query.Handle, subscribe bool) loader.LoadFunc {
	return func(onSettled func(error)) func() {
		ctx := context.Background()
		onResults := func(ids []string, err error) {
			if err != nil {
				return
			}
			m.queryRes[qh.Hash()] = query.Result{Ids: ids}
			m.bus.Emit(events.Event{Kind: events.Change, Path: path.Path{"$queries", qh.Collection, qh.Hash()}, Value: ids})
		}
		if !subscribe {
			m.store.FetchQuery(ctx, qh.Collection, qh.Expression, qh.Options, func(ids []string, err error) {
				onResults(ids, err)
				onSettled(err)
			})
			return nil
		}
		sub, err := m.store.SubscribeQuery(ctx, qh.Collection, qh.Expression, qh.Options, onResults)
		if err != nil {
			onSettled(err)
			return nil
		}
		m.registerSub(loader.QueryKey(qh.Collection, qh.Hash()), sub)
		onSettled(nil)
		return func() { sub.Unsubscribe() }
	}
}
