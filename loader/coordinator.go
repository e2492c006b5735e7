// Package loader implements Racer's LoadCoordinator: the
// reference-counted fetch/subscribe state machine described in
// spec.md §4.6, one instance per item (doc or query) per context,
// summed across contexts to decide residency.
package loader

import (
	"time"

	"github.com/RoaringBitmap/roaring"
)

// ItemKey addresses a loadable item: a document (DocKey) or a query
// (QueryKey), per spec.md §3's Context.itemKey shapes.
type ItemKey string

// DocKey builds the itemKey for a single document.
func DocKey(collection, id string) ItemKey {
	return ItemKey("doc:" + collection + "." + id)
}

// QueryKey builds the itemKey for a query, given its precomputed
// stable hash (query.StableHash).
func QueryKey(collection, hash string) ItemKey {
	return ItemKey("query:" + collection + ":" + hash)
}

// State is a node in the per-item state machine from spec.md §4.6.
type State int

const (
	Absent State = iota
	Loading
	Resident
	Unloading
)

// String renders State for logging/diagnostics.
func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Resident:
		return "resident"
	case Unloading:
		return "unloading"
	default:
		return "absent"
	}
}

// LoadFunc performs the actual DocStore fetch or subscribe for an
// item. It must call onSettled exactly once (nil on success, an error
// otherwise) and may return a cancel function invoked if the load is
// aborted by a refcount drop before it settles (spec.md §5
// cancellation); a nil cancel means the load cannot be aborted
// in-flight.
type LoadFunc func(onSettled func(error)) (cancel func())

// Watcher receives State transitions for one item, letting a Handle or
// QueryHandle react (e.g. emit a `load`/`unload` event).
type Watcher func(key ItemKey, from, to State)

type itemState struct {
	state          State
	fetchCount     int
	subscribeCount int
	cancel         func()
	unloadDeadline time.Time
	pendingSlot    uint32
	hasPendingSlot bool
}

func (s *itemState) refCount() int { return s.fetchCount + s.subscribeCount }

type contextCounts struct {
	fetches    map[ItemKey]int
	subscribes map[ItemKey]int
}

func newContextCounts() *contextCounts {
	return &contextCounts{fetches: map[ItemKey]int{}, subscribes: map[ItemKey]int{}}
}

// Coordinator is the LoadCoordinator. The zero value is not usable;
// construct with New.
type Coordinator struct {
	unloadDelay time.Duration
	fetchOnly   bool
	watcher     Watcher
	now         func() time.Time

	items    map[ItemKey]*itemState
	contexts map[string]*contextCounts

	// unloading holds the keys of items currently in Unloading with a
	// deadline still pending; Drain checks it against now() instead of a
	// timer goroutine, keeping the transition on the caller's thread.
	unloading map[ItemKey]struct{}

	pending       *roaring.Bitmap
	nextPendingID uint32
	waiters       []func()
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

// WithUnloadDelay sets the debounce applied before an item transitions
// from Unloading to Absent.
func WithUnloadDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.unloadDelay = d }
}

// WithFetchOnly downgrades every Subscribe call to a Fetch, per
// spec.md §4.6.
func WithFetchOnly(b bool) Option {
	return func(c *Coordinator) { c.fetchOnly = b }
}

// WithWatcher registers a callback invoked on every item state
// transition.
func WithWatcher(w Watcher) Option {
	return func(c *Coordinator) { c.watcher = w }
}

// New constructs a Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		items:     map[ItemKey]*itemState{},
		contexts:  map[string]*contextCounts{},
		unloading: map[ItemKey]struct{}{},
		pending:   roaring.New(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) contextFor(contextID string) *contextCounts {
	cc, ok := c.contexts[contextID]
	if !ok {
		cc = newContextCounts()
		c.contexts[contextID] = cc
	}
	return cc
}

func (c *Coordinator) itemFor(key ItemKey) *itemState {
	it, ok := c.items[key]
	if !ok {
		it = &itemState{}
		c.items[key] = it
	}
	return it
}

func (c *Coordinator) transition(key ItemKey, it *itemState, to State) {
	if it.state == to {
		return
	}
	from := it.state
	it.state = to
	if c.watcher != nil {
		c.watcher(key, from, to)
	}
}

func (c *Coordinator) beginPending() uint32 {
	id := c.nextPendingID
	c.nextPendingID++
	c.pending.Add(id)
	return id
}

func (c *Coordinator) endPending(id uint32) {
	c.pending.Remove(id)
	c.flushIfSettled()
}

func (c *Coordinator) flushIfSettled() {
	if !c.pending.IsEmpty() {
		return
	}
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		w()
	}
}

// WhenNothingPending invokes cb once every in-flight load issued
// before this call has settled, queued behind Drain so ordering with
// just-issued loads is preserved (spec.md §5, §8 invariant 8). If
// nothing is pending right now, cb still fires only on the next Drain,
// never synchronously from within this call.
func (c *Coordinator) WhenNothingPending(cb func()) {
	c.waiters = append(c.waiters, cb)
}

// Drain flushes any WhenNothingPending callbacks that became runnable
// and retires any Unloading item whose unload deadline has passed; a
// racer.Model calls this once at the end of every public API call,
// modeling the "next tick" spec.md describes without introducing real
// concurrency — there is no timer goroutine anywhere in Coordinator,
// only deadlines checked the next time the caller's thread reenters it.
func (c *Coordinator) Drain() {
	c.flushIfSettled()
	c.flushExpiredUnloads()
}

func (c *Coordinator) flushExpiredUnloads() {
	if len(c.unloading) == 0 {
		return
	}
	now := c.now()
	for key := range c.unloading {
		it, ok := c.items[key]
		if !ok || it.state != Unloading || it.refCount() > 0 {
			delete(c.unloading, key)
			continue
		}
		if !now.Before(it.unloadDeadline) {
			c.transition(key, it, Absent)
			delete(c.unloading, key)
		}
	}
}

// Pending reports whether any load is currently in flight.
func (c *Coordinator) Pending() bool {
	return !c.pending.IsEmpty()
}

// StateOf reports an item's current residency state.
func (c *Coordinator) StateOf(key ItemKey) State {
	it, ok := c.items[key]
	if !ok {
		return Absent
	}
	return it.state
}

// Fetch increments key's fetch refcount under contextID and, if this
// is the item's first reference, issues load. onSettled (if non-nil)
// fires once the load — or, if the item was already resident, nothing
// — settles.
func (c *Coordinator) Fetch(contextID string, key ItemKey, load LoadFunc, onSettled func(error)) {
	c.acquire(contextID, key, false, load, onSettled)
}

// Subscribe increments key's subscribe refcount under contextID. In
// fetchOnly mode this behaves exactly like Fetch.
func (c *Coordinator) Subscribe(contextID string, key ItemKey, load LoadFunc, onSettled func(error)) {
	if c.fetchOnly {
		c.Fetch(contextID, key, load, onSettled)
		return
	}
	c.acquire(contextID, key, true, load, onSettled)
}

func (c *Coordinator) acquire(contextID string, key ItemKey, subscribe bool, load LoadFunc, onSettled func(error)) {
	cc := c.contextFor(contextID)
	it := c.itemFor(key)

	if subscribe {
		cc.subscribes[key]++
		it.subscribeCount++
	} else {
		cc.fetches[key]++
		it.fetchCount++
	}

	switch it.state {
	case Resident:
		if onSettled != nil {
			onSettled(nil)
		}
		return
	case Unloading:
		delete(c.unloading, key)
		it.unloadDeadline = time.Time{}
		c.transition(key, it, Resident)
		if onSettled != nil {
			onSettled(nil)
		}
		return
	case Loading:
		// Already in flight; the new caller rides the existing load.
		return
	default: // Absent
		c.transition(key, it, Loading)
		pendingID := c.beginPending()
		it.hasPendingSlot = true
		it.pendingSlot = pendingID
		cancel := load(func(err error) {
			c.settle(key, it, pendingID, err, onSettled)
		})
		it.cancel = cancel
	}
}

func (c *Coordinator) settle(key ItemKey, it *itemState, pendingID uint32, err error, onSettled func(error)) {
	if it.hasPendingSlot && it.pendingSlot == pendingID {
		it.hasPendingSlot = false
		c.endPending(pendingID)
	}
	if err != nil {
		c.transition(key, it, Absent)
		it.fetchCount = 0
		it.subscribeCount = 0
		if onSettled != nil {
			onSettled(err)
		}
		return
	}
	if it.refCount() > 0 {
		c.transition(key, it, Resident)
	} else {
		c.transition(key, it, Absent)
	}
	if onSettled != nil {
		onSettled(nil)
	}
}

// Unfetch decrements key's fetch refcount under contextID; when the
// summed refcount reaches zero the item enters Unloading, transitioning
// to Absent after unloadDelay (or, for an in-flight Loading item,
// cancelling it immediately).
func (c *Coordinator) Unfetch(contextID string, key ItemKey) {
	c.release(contextID, key, false)
}

// Unsubscribe decrements key's subscribe refcount under contextID. In
// fetchOnly mode this behaves exactly like Unfetch, mirroring Subscribe.
func (c *Coordinator) Unsubscribe(contextID string, key ItemKey) {
	if c.fetchOnly {
		c.release(contextID, key, false)
		return
	}
	c.release(contextID, key, true)
}

func (c *Coordinator) release(contextID string, key ItemKey, subscribe bool) {
	cc, ok := c.contexts[contextID]
	if !ok {
		return
	}
	it, ok := c.items[key]
	if !ok {
		return
	}

	if subscribe {
		if cc.subscribes[key] > 0 {
			cc.subscribes[key]--
			it.subscribeCount--
		}
	} else {
		if cc.fetches[key] > 0 {
			cc.fetches[key]--
			it.fetchCount--
		}
	}

	if it.refCount() > 0 {
		return
	}

	switch it.state {
	case Loading:
		if it.cancel != nil {
			it.cancel()
		}
		if it.hasPendingSlot {
			it.hasPendingSlot = false
			c.endPending(it.pendingSlot)
		}
		c.transition(key, it, Absent)
	case Resident:
		c.transition(key, it, Unloading)
		c.scheduleUnload(key, it)
	}
}

// UnloadAllContext releases every fetch/subscribe reference contextID
// holds, as if Unfetch/Unsubscribe had been called once per
// outstanding reference, then forgets the context entirely.
func (c *Coordinator) UnloadAllContext(contextID string) {
	cc, ok := c.contexts[contextID]
	if !ok {
		return
	}
	fetches := make(map[ItemKey]int, len(cc.fetches))
	for k, n := range cc.fetches {
		fetches[k] = n
	}
	subscribes := make(map[ItemKey]int, len(cc.subscribes))
	for k, n := range cc.subscribes {
		subscribes[k] = n
	}
	for key, n := range fetches {
		for i := 0; i < n; i++ {
			c.release(contextID, key, false)
		}
	}
	for key, n := range subscribes {
		for i := 0; i < n; i++ {
			c.release(contextID, key, true)
		}
	}
	delete(c.contexts, contextID)
}

// ContextItems returns contextID's currently-held ItemKeys, once per
// outstanding reference (so a key fetched twice appears twice) — the
// raw material for a snapshot.Bundle's ContextSnapshot.
func (c *Coordinator) ContextItems(contextID string) (fetches, subscribes []ItemKey) {
	cc, ok := c.contexts[contextID]
	if !ok {
		return nil, nil
	}
	for k, n := range cc.fetches {
		for i := 0; i < n; i++ {
			fetches = append(fetches, k)
		}
	}
	for k, n := range cc.subscribes {
		for i := 0; i < n; i++ {
			subscribes = append(subscribes, k)
		}
	}
	return fetches, subscribes
}

// scheduleUnload marks it Unloading-pending-Absent. With no delay the
// transition happens inline; with a delay it's recorded as a deadline
// and left for Drain to retire on a later caller-driven pass — no timer
// goroutine, so nothing ever mutates itemState off the caller's thread.
func (c *Coordinator) scheduleUnload(key ItemKey, it *itemState) {
	if c.unloadDelay <= 0 {
		if it.refCount() == 0 && it.state == Unloading {
			c.transition(key, it, Absent)
		}
		return
	}
	it.unloadDeadline = c.now().Add(c.unloadDelay)
	c.unloading[key] = struct{}{}
}
