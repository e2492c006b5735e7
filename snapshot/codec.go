// Package snapshot implements the SnapshotCodec from spec.md §6:
// bundling a Model's tree, its named Contexts, live query
// registrations, and caller-supplied ref/filter/function records into
// one opaque, portable blob, and restoring a Model from one.
package snapshot

import (
	"encoding/json"
	"io"

	billy "github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"

	"github.com/racer-model/racer/path"
)

// ErrCorruptBundle is the sentinel errors.Is(err, ErrCorruptBundle)
// matches against: ReadFrom wraps it whenever the input isn't a
// bundle this codec produced (spec.md §6's CorruptBundle).
var ErrCorruptBundle = errors.New("snapshot: corrupt bundle")

// corruptBundleError carries the underlying decode failure while
// still satisfying errors.Is(err, ErrCorruptBundle).
type corruptBundleError struct {
	cause error
}

func (e *corruptBundleError) Error() string { return "snapshot: corrupt bundle: " + e.cause.Error() }
func (e *corruptBundleError) Unwrap() error { return e.cause }
func (e *corruptBundleError) Is(target error) bool { return target == ErrCorruptBundle }

const bundleVersion = 1

// RefSpec mirrors a caller-registered reference binding (SPEC_FULL.md
// §3.1): a path that dereferences to another path elsewhere in the
// tree. Racer stores these as opaque records; it does not interpret
// or recompute them.
type RefSpec struct {
	From path.Path `json:"from"`
	To   path.Path `json:"to"`
}

// RefListSpec mirrors a caller-registered ref-list binding: a path
// whose children are populated from a query's result set.
type RefListSpec struct {
	From       path.Path `json:"from"`
	Collection string    `json:"collection"`
	QueryHash  string    `json:"queryHash"`
	Expression any       `json:"expression"`
	Options    any       `json:"options,omitempty"`
}

// FilterSpec mirrors a caller-registered named filter over a
// collection.
type FilterSpec struct {
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Expr       any    `json:"expr"`
}

// FnSpec mirrors a caller-registered named function binding; Racer
// persists the name and its declared arguments only, since Go values
// cannot round-trip through JSON.
type FnSpec struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// ContextSnapshot captures one named Context's live item set: every
// itemKey it currently holds a fetch or subscribe reference to, so
// Unbundle can re-acquire them against a fresh Model.
type ContextSnapshot struct {
	Name    string   `json:"name"`
	Fetches []string `json:"fetches,omitempty"`
	Subs    []string `json:"subs,omitempty"`
}

// Bundle is the decoded, in-memory form of a snapshot.
type Bundle struct {
	Version  int               `json:"version"`
	Tree     any               `json:"tree"`
	Contexts []ContextSnapshot `json:"contexts,omitempty"`
	Refs     []RefSpec         `json:"refs,omitempty"`
	RefLists []RefListSpec     `json:"refLists,omitempty"`
	Filters  []FilterSpec      `json:"filters,omitempty"`
	Fns      []FnSpec          `json:"fns,omitempty"`
}

// WriteTo serializes b to w as JSON. The filesystem w came from is
// opaque to the codec: billy.Filesystem lets the caller target an
// in-memory store, the OS filesystem, or any other billy-backed
// target without this package knowing which.
func WriteTo(w io.Writer, b *Bundle) error {
	b.Version = bundleVersion
	enc := json.NewEncoder(w)
	if err := enc.Encode(b); err != nil {
		return errors.Wrap(err, "snapshot: encode bundle")
	}
	return nil
}

// ReadFrom decodes a Bundle previously written by WriteTo.
func ReadFrom(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, &corruptBundleError{cause: err}
	}
	if b.Version == 0 || b.Version > bundleVersion {
		return nil, &corruptBundleError{cause: errors.Errorf("unknown bundle version %d", b.Version)}
	}
	return &b, nil
}

// Save writes b to filename on fs, creating or truncating it.
func Save(fs billy.Filesystem, filename string, b *Bundle) error {
	f, err := fs.Create(filename)
	if err != nil {
		return errors.Wrap(err, "snapshot: create bundle file")
	}
	defer f.Close()
	return WriteTo(f, b)
}

// Load reads and decodes a Bundle from filename on fs.
func Load(fs billy.Filesystem, filename string) (*Bundle, error) {
	f, err := fs.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot: open bundle file")
	}
	defer f.Close()
	return ReadFrom(f)
}
