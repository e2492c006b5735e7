// Package racer is the core model engine: the path-addressed tree,
// scoped handles, the mutation pipeline, path-impact event dispatch,
// and the fetch/subscribe load lifecycle described in spec.md.
package racer

import (
	"github.com/racer-model/racer/docstore"
	"github.com/racer-model/racer/events"
	"github.com/racer-model/racer/loader"
	"github.com/racer-model/racer/path"
	"github.com/racer-model/racer/query"
)

// Handle is a user-facing scoped reference into a Model's tree:
// (model, absolute path, data-loading context, flags). Child handles
// share the root's Tree and EventBus; they never own their own state.
// The zero value is not usable — obtain one via Model.Root() and its
// navigation methods.
type Handle struct {
	model *Model
	path  path.Path

	contextID      string
	silent         bool
	pass           any
	preventCompose bool
	eventContext   string
}

// Path returns h's absolute canonical path, satisfying the handleLike
// interface path.Canonicalize accepts.
func (h *Handle) Path() path.Path { return h.path }

// PathString renders h's path in dotted-string form.
func (h *Handle) PathString() string { return h.path.String() }

func (h *Handle) clone() *Handle {
	c := *h
	c.path = h.path.Clone()
	return &c
}

// At returns a child handle whose path is sub canonicalized against
// h's own path; every other field is inherited unchanged.
func (h *Handle) At(sub any) (*Handle, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, newError(KindInvalidPath, "at", h.path, err)
	}
	c := h.clone()
	c.path = full
	return c, nil
}

// Scope returns a handle bound to absolute (an absolute path, ignoring
// h's own path entirely), keeping h's context and flags.
func (h *Handle) Scope(absolute any) (*Handle, error) {
	full, err := path.Canonicalize(nil, absolute)
	if err != nil {
		return nil, newError(KindInvalidPath, "scope", nil, err)
	}
	c := h.clone()
	c.path = full
	return c, nil
}

// Parent returns a handle levels segments up from h's own path
// (levels defaults to 1 when 0 is passed); it never goes above the
// root.
func (h *Handle) Parent(levels int) *Handle {
	if levels <= 0 {
		levels = 1
	}
	n := len(h.path) - levels
	if n < 0 {
		n = 0
	}
	c := h.clone()
	c.path = h.path[:n].Clone()
	return c
}

// Leaf returns h's final path segment, or nil at the root.
func (h *Handle) Leaf() path.Segment {
	if len(h.path) == 0 {
		return nil
	}
	return h.path[len(h.path)-1]
}

// WithSilent returns a copy of h that suppresses local event emission
// for writes issued through it, per spec.md §4.3's silent flag.
func (h *Handle) WithSilent(silent bool) *Handle {
	c := h.clone()
	c.silent = silent
	return c
}

// WithPass returns a copy of h that attaches passed as caller-defined
// metadata on every event it emits.
func (h *Handle) WithPass(passed any) *Handle {
	c := h.clone()
	c.pass = passed
	return c
}

// WithPreventCompose returns a copy of h that disables op-compose
// downstream for writes issued through it.
func (h *Handle) WithPreventCompose(prevent bool) *Handle {
	c := h.clone()
	c.preventCompose = prevent
	return c
}

// WithEventContext returns a copy of h that labels its emissions with
// eventContext, the value silent listeners match against to still
// receive it (spec.md §4.5).
func (h *Handle) WithEventContext(eventContext string) *Handle {
	c := h.clone()
	c.eventContext = eventContext
	return c
}

// Context returns a sibling handle — same path and flags — bound to
// the named data-loading context instead of h's own.
func (h *Handle) Context(id string) *Handle {
	c := h.clone()
	c.contextID = id
	return c
}

// ID returns a freshly generated identifier, per spec.md §4.3.
func (h *Handle) ID() string { return NewID() }

// Get returns the live value at sub (or h's own path if sub is nil);
// callers must not mutate the result.
func (h *Handle) Get(sub any) (any, bool, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, false, newError(KindInvalidPath, "get", h.path, err)
	}
	v, ok := h.model.tree.Lookup(full)
	return v, ok, nil
}

// GetCopy returns a shallow copy of the value at sub.
func (h *Handle) GetCopy(sub any) (any, bool, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, false, newError(KindInvalidPath, "getCopy", h.path, err)
	}
	v, ok := h.model.tree.GetCopy(full)
	return v, ok, nil
}

// GetDeepCopy returns a full recursive structural copy of the value at
// sub.
func (h *Handle) GetDeepCopy(sub any) (any, bool, error) {
	full, err := path.Canonicalize(h.path, sub)
	if err != nil {
		return nil, false, newError(KindInvalidPath, "getDeepCopy", h.path, err)
	}
	v, ok := h.model.tree.GetDeepCopy(full)
	return v, ok, nil
}

// Set writes value at sub and returns the previous value.
func (h *Handle) Set(sub any, value any, cb docstore.OpCallback) (any, error) {
	return h.model.set(h, sub, value, cb)
}

// SetDiff writes value at sub only if it differs from the current
// value under strict equality (spec.md §4.2's StrictEqual).
func (h *Handle) SetDiff(sub any, value any, cb docstore.OpCallback) (any, error) {
	return h.model.setDiff(h, sub, value, false, cb)
}

// SetDiffDeep writes value at sub only if it differs from the current
// value under deep structural equality.
func (h *Handle) SetDiffDeep(sub any, value any, cb docstore.OpCallback) (any, error) {
	return h.model.setDiff(h, sub, value, true, cb)
}

// SetNull writes value at sub only if the current value is absent or
// null.
func (h *Handle) SetNull(sub any, value any, cb docstore.OpCallback) (any, error) {
	return h.model.setNull(h, sub, value, cb)
}

// Del removes the value at sub and returns it; a no-op if absent.
func (h *Handle) Del(sub any, cb docstore.OpCallback) (any, error) {
	return h.model.del(h, sub, cb)
}

// Add assigns an id (generating one if doc carries none), writes doc
// to collection.<id>, and returns the id.
func (h *Handle) Add(collection string, doc map[string]any, cb docstore.OpCallback) (string, error) {
	return h.model.add(h, collection, doc, cb)
}

// Increment adds delta to the number at sub (delta defaults to 1 when 0
// is passed), treating a missing value as 0, and returns the new value.
func (h *Handle) Increment(sub any, delta float64, cb docstore.OpCallback) (float64, error) {
	if delta == 0 {
		delta = 1
	}
	return h.model.increment(h, sub, delta, cb)
}

// Push appends item to the array at sub, synthesizing an empty array
// there if absent, and returns the new length.
func (h *Handle) Push(sub any, item any, cb docstore.OpCallback) (int, error) {
	return h.model.push(h, sub, item, cb)
}

// Insert splices items into the array at sub starting at index and
// returns the new length.
func (h *Handle) Insert(sub any, index int, items []any, cb docstore.OpCallback) (int, error) {
	return h.model.insert(h, sub, index, items, cb)
}

// Remove splices up to count elements out of the array at sub
// starting at index and returns the removed elements.
func (h *Handle) Remove(sub any, index, count int, cb docstore.OpCallback) ([]any, error) {
	return h.model.remove(h, sub, index, count, cb)
}

// Fetch resolves each item (see docAddressOf: nil for h's own doc, a
// path/Handle/dotted string for another doc, or a *Query) and issues a
// one-shot load under h's context, invoking cb once every item
// settles (nil error on full success, the first error otherwise).
func (h *Handle) Fetch(cb func(error), items ...any) error {
	return h.load(cb, false, items...)
}

// Subscribe is like Fetch but keeps every item's data current until
// Unsubscribe (downgraded to Fetch semantics when the Model was built
// with FetchOnly).
func (h *Handle) Subscribe(cb func(error), items ...any) error {
	return h.load(cb, true, items...)
}

func (h *Handle) load(cb func(error), subscribe bool, items ...any) error {
	if h.model.cfg.FetchOnly {
		subscribe = false
	}
	h.model.touchContext(h.contextID)
	if len(items) == 0 {
		items = []any{nil}
	}
	pending := len(items)
	var firstErr error
	settle := func(err error) {
		pending--
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if pending == 0 && cb != nil {
			cb(firstErr)
		}
	}
	for _, item := range items {
		if qh, ok := item.(*Query); ok {
			key := loader.QueryKey(qh.handle.Collection, qh.handle.Hash())
			loadFn := h.model.queryLoadFunc(qh.handle, subscribe)
			if subscribe {
				h.model.coord.Subscribe(h.contextID, key, loadFn, settle)
			} else {
				h.model.coord.Fetch(h.contextID, key, loadFn, settle)
			}
			continue
		}
		ref, err := docAddressOf(h, item)
		if err != nil {
			settle(err)
			continue
		}
		key := loader.DocKey(ref.collection, ref.id)
		loadFn := h.model.docLoadFunc(ref, subscribe)
		if subscribe {
			h.model.coord.Subscribe(h.contextID, key, loadFn, settle)
		} else {
			h.model.coord.Fetch(h.contextID, key, loadFn, settle)
		}
	}
	h.model.coord.Drain()
	return nil
}

// Unfetch releases one fetch reference per item under h's context.
func (h *Handle) Unfetch(items ...any) {
	h.release(false, items...)
}

// Unsubscribe releases one subscribe reference per item under h's
// context.
func (h *Handle) Unsubscribe(items ...any) {
	h.release(true, items...)
}

func (h *Handle) release(subscribe bool, items ...any) {
	if len(items) == 0 {
		items = []any{nil}
	}
	for _, item := range items {
		var key loader.ItemKey
		if qh, ok := item.(*Query); ok {
			key = loader.QueryKey(qh.handle.Collection, qh.handle.Hash())
		} else {
			ref, err := docAddressOf(h, item)
			if err != nil {
				continue
			}
			key = loader.DocKey(ref.collection, ref.id)
		}
		if subscribe {
			h.model.coord.Unsubscribe(h.contextID, key)
		} else {
			h.model.coord.Unfetch(h.contextID, key)
		}
	}
	h.model.coord.Drain()
}

// Unload releases every outstanding fetch/subscribe reference held by
// the named context (h's own context if id is omitted).
func (h *Handle) Unload(id ...string) {
	target := h.contextID
	if len(id) > 0 {
		target = id[0]
	}
	h.model.coord.UnloadAllContext(target)
}

// UnloadAll releases every outstanding reference across every context
// this Model has ever seen.
func (h *Handle) UnloadAll() {
	for id := range h.model.contextIDs {
		h.model.coord.UnloadAllContext(id)
	}
}

// Query builds a client-side query handle over collection, scoped to
// h's context, matching spec.md §4.7.
func (h *Handle) Query(collection string, expression, options any) *Query {
	return &Query{
		model:     h.model,
		handle:    query.New(collection, expression, options),
		contextID: h.contextID,
	}
}

// On registers handler for events of kind impacting h's path (spec.md
// §4.5's mayImpact law): fired whenever a mutation anywhere at or
// above or below h's own path emits a matching event. kind ==
// events.All matches every kind. Returns a token for Off.
func (h *Handle) On(kind events.Kind, handler events.Handler) events.Subscription {
	return h.model.bus.Subscribe(h.path, kind, h.eventContext, handler)
}

// Off unregisters a listener previously returned by On.
func (h *Handle) Off(sub events.Subscription) {
	h.model.bus.Unsubscribe(sub)
}
