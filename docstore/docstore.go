// Package docstore defines the narrow interface Racer's core consumes
// from the external OT backend (spec.md §6), the JSON0-shaped wire op
// the core emits, and an in-memory reference implementation used by
// tests and the demo CLI.
package docstore

import (
	"context"

	"github.com/racer-model/racer/path"
)

// Op mirrors the well-known JSON0 operational-transform op shape:
// exactly one of the value fields is set, selecting the operation.
type Op struct {
	Path path.Path `json:"p"`

	// OI ("object insert") sets a value; paired with OD it is a
	// replace.
	OI any `json:"oi,omitempty"`
	// OD ("object delete") removes a value, or pairs with OI to carry
	// the pre-image of a replace.
	OD any `json:"od,omitempty"`

	// LI ("list insert") inserts into an array at Path.
	LI any `json:"li,omitempty"`
	// LD ("list delete") removes an array element at Path, carrying its
	// pre-image.
	LD any `json:"ld,omitempty"`

	// NA ("numeric add") adds a delta to the number at Path.
	NA *float64 `json:"na,omitempty"`

	// LM ("list move") moves the array element at Path to index LM.
	LM *int `json:"lm,omitempty"`
}

// IsSet reports whether o is a set (oi only, no od — an add onto an
// address that previously held nothing).
func (o Op) IsSet() bool { return o.OI != nil && o.OD == nil }

// IsDelete reports whether o is a delete (od only).
func (o Op) IsDelete() bool { return o.OD != nil && o.OI == nil && o.LD == nil }

// IsReplace reports whether o carries both a pre- and post-image at
// the same object address.
func (o Op) IsReplace() bool { return o.OI != nil && o.OD != nil }

// IsListInsert reports whether o inserts a list element.
func (o Op) IsListInsert() bool { return o.LI != nil }

// IsListDelete reports whether o removes a list element.
func (o Op) IsListDelete() bool { return o.LD != nil && o.OD == nil }

// IsIncrement reports whether o is a numeric add.
func (o Op) IsIncrement() bool { return o.NA != nil }

// IsMove reports whether o moves a list element.
func (o Op) IsMove() bool { return o.LM != nil }

// OpCallback is invoked once an op submission settles; err is nil on
// ack, or the backend's error otherwise. Callbacks passed to racer's
// Handle mutations receive that error wrapped in a *racer.Error of
// KindBackendError.
type OpCallback func(err error)

// ResultsCallback delivers a query's matching document ids, or an
// error. Subsequent calls on the same subscription carry updated
// result sets as the backend's view changes.
type ResultsCallback func(ids []string, err error)

// Subscription represents a live subscribeDoc/subscribeQuery
// registration; Unsubscribe tears it down. Unsubscribing a
// subscription twice is a no-op.
type Subscription interface {
	Unsubscribe()
}

// DocStore is the external collaborator the core model engine
// consumes (spec.md §6): doc/query fetch, subscribe, and op submit. A
// conformant implementation talks to a real OT server; Memory (in this
// package) is the in-process reference used for tests and demos.
type DocStore interface {
	// FetchDoc retrieves collection/id once, without subscribing to
	// further changes.
	FetchDoc(ctx context.Context, collection, id string) (any, error)

	// SubscribeDoc retrieves collection/id and keeps onOp informed of
	// every subsequent remote op touching it, until the returned
	// Subscription is unsubscribed.
	SubscribeDoc(ctx context.Context, collection, id string, onOp func(Op)) (Subscription, error)

	// SubmitOp applies op to collection/id and forwards it to other
	// subscribers; callback fires once the submission settles.
	SubmitOp(ctx context.Context, collection, id string, op Op, callback OpCallback)

	// FetchQuery evaluates expression/options against collection once.
	FetchQuery(ctx context.Context, collection string, expression, options any, onResults ResultsCallback)

	// SubscribeQuery evaluates expression/options against collection
	// and keeps onResults informed as the result set changes, until the
	// returned Subscription is unsubscribed.
	SubscribeQuery(ctx context.Context, collection string, expression, options any, onResults ResultsCallback) (Subscription, error)
}
