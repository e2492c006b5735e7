// Package events implements Racer's path-prefix listener index: the
// fan-out mechanism that turns a Mutator's change into callbacks on
// every Handle that registered interest in an impacted path.
package events

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/racer-model/racer/path"
)

// Kind identifies the shape of mutation an Event describes, matching
// the observable events named in spec.md §6.
type Kind string

const (
	Change Kind = "change"
	Insert Kind = "insert"
	Remove Kind = "remove"
	Move   Kind = "move"
	Load   Kind = "load"
	Unload Kind = "unload"
	// All matches every Kind; used only for listener registration, never
	// carried by an emitted Event.
	All Kind = "all"
)

// Event is the payload delivered to a Handler, matching spec.md §6's
// {path, value, previous, passed} shape plus the emitter's silence and
// event-context flags needed to apply the §4.5 delivery rule.
type Event struct {
	Kind         Kind
	Path         path.Path
	Value        any
	Previous     any
	Passed       any
	Silent       bool
	EventContext string
}

// Handler receives a matching Event. Panics raised by a Handler are
// recovered and reported to the Bus's ErrorSink; they never abort the
// rest of fan-out.
type Handler func(Event)

// ErrorSink receives handler panics and other non-fatal emission
// errors. See SPEC_FULL.md §4.9 for the zap-backed implementation;
// NewBus uses NopSink when given none.
type ErrorSink interface {
	Report(err error)
}

// NopSink discards every report; useful in tests that don't want log
// noise from intentionally-panicking handlers.
type NopSink struct{}

// Report implements ErrorSink.
func (NopSink) Report(error) {}

type listener struct {
	id      uint32
	path    path.Path
	kind    Kind
	ctx     string
	handler Handler
}

// Bus is the path-prefix listener index. The zero value is not usable;
// construct with NewBus. A Bus is not safe for concurrent use — per
// spec.md §5 the core assumes a single logical event loop.
type Bus struct {
	sink      ErrorSink
	listeners []listener
	live      *roaring.Bitmap
	nextID    uint32

	emitting bool
	queue    []Event
}

// NewBus constructs an empty Bus reporting to sink. A nil sink is
// treated as NopSink.
func NewBus(sink ErrorSink) *Bus {
	if sink == nil {
		sink = NopSink{}
	}
	return &Bus{sink: sink, live: roaring.New()}
}

// Subscription is the token returned by Subscribe, passed back to
// Unsubscribe.
type Subscription uint32

// Subscribe registers handler for events of kind at p (kind == All
// matches every emitted Kind) and returns a token to later Unsubscribe
// it. eventContext, if non-empty, restricts delivery of silent events
// per the §4.5 rule; pass "" to only ever receive non-silent events
// emitted at this path.
func (b *Bus) Subscribe(p path.Path, kind Kind, eventContext string, handler Handler) Subscription {
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, listener{
		id:      id,
		path:    p.Clone(),
		kind:    kind,
		ctx:     eventContext,
		handler: handler,
	})
	b.live.Add(id)
	return Subscription(id)
}

// Unsubscribe removes the listener registered under sub. It is a
// no-op if sub was never returned by Subscribe or was already removed.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.live.Remove(uint32(sub))
}

// Emit fans e out to every live listener whose kind matches and whose
// path may be impacted by e.Path (path.MayImpact), in registration
// order. If Emit is called re-entrantly from within a Handler, e is
// queued and delivered after the in-progress emission completes —
// handlers never see nested fan-out.
func (b *Bus) Emit(e Event) {
	if b.emitting {
		b.queue = append(b.queue, e)
		return
	}
	b.emitting = true
	b.dispatch(e)
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.dispatch(next)
	}
	b.emitting = false
}

func (b *Bus) dispatch(e Event) {
	// Snapshot the listener count: handlers that subscribe new
	// listeners during this dispatch are not invoked for e itself,
	// only for subsequent events, matching registration-order
	// semantics for the emission already in flight.
	n := len(b.listeners)
	for i := 0; i < n; i++ {
		l := b.listeners[i]
		if !b.live.Contains(l.id) {
			continue
		}
		if l.kind != All && l.kind != e.Kind {
			continue
		}
		if !path.MayImpact(l.path, e.Path) {
			continue
		}
		if e.Silent && (l.ctx == "" || l.ctx != e.EventContext) {
			continue
		}
		b.invoke(l, e)
	}
}

func (b *Bus) invoke(l listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.sink.Report(fmt.Errorf("racer/events: listener %d panicked: %v", l.id, r))
		}
	}()
	l.handler(e)
}

// Len reports the number of listeners ever registered (live or not),
// primarily for tests and diagnostics.
func (b *Bus) Len() int { return len(b.listeners) }

// ReportError forwards err to the Bus's ErrorSink, the same channel a
// recovered Handler panic uses — for asynchronous failures (a remote
// op that can't be applied, a query callback that errored) that have
// no caller-supplied callback to report through instead.
func (b *Bus) ReportError(err error) {
	if err == nil {
		return
	}
	b.sink.Report(err)
}
