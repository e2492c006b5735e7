package racer_test

import (
	"testing"

	racer "github.com/racer-model/racer"
	"github.com/racer-model/racer/docstore"
	"github.com/racer-model/racer/events"
)

func newModel() *racer.Model {
	return racer.New(docstore.NewMemory(nil), nil, nil)
}

// a. scalar set/get.
func TestSetThenGetScalar(t *testing.T) {
	m := newModel()
	root := m.Root()

	prev, err := root.Set("books.1.title", "Dune", nil)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if prev != nil {
		t.Fatalf("expected nil previous, got %v", prev)
	}

	got, ok, err := root.Get("books.1.title")
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	if got != "Dune" {
		t.Fatalf("got %v, want Dune", got)
	}
}

// b. array push on an absent path synthesizes an empty array first.
func TestPushOnAbsentPathSynthesizesArray(t *testing.T) {
	m := newModel()
	root := m.Root()

	length, err := root.Push("books.1.tags", "scifi", nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if length != 1 {
		t.Fatalf("got length %d, want 1", length)
	}

	length, err = root.Push("books.1.tags", "classic", nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if length != 2 {
		t.Fatalf("got length %d, want 2", length)
	}

	got, ok, err := root.Get("books.1.tags")
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 2 || arr[0] != "scifi" || arr[1] != "classic" {
		t.Fatalf("unexpected array: %v", got)
	}
}

// c. increment treats a missing value as 0.
func TestIncrementDefaultsMissingToZero(t *testing.T) {
	m := newModel()
	root := m.Root()

	got, err := root.Increment("books.1.views", 5, nil)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if got != 5 {
		t.Fatalf("got %v, want 5", got)
	}

	got, err = root.Increment("books.1.views", 2, nil)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if got != 7 {
		t.Fatalf("got %v, want 7", got)
	}
}

// d. insert/remove round trip.
func TestInsertThenRemove(t *testing.T) {
	m := newModel()
	root := m.Root()

	if _, err := root.Set("books.1.tags", []any{"a", "d"}, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	length, err := root.Insert("books.1.tags", 1, []any{"b", "c"}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if length != 4 {
		t.Fatalf("got length %d, want 4", length)
	}

	got, _, _ := root.Get("books.1.tags")
	arr := got.([]any)
	want := []any{"a", "b", "c", "d"}
	for i, w := range want {
		if arr[i] != w {
			t.Fatalf("got %v, want %v", arr, want)
		}
	}

	removed, err := root.Remove("books.1.tags", 1, 2, nil)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(removed) != 2 || removed[0] != "b" || removed[1] != "c" {
		t.Fatalf("unexpected removed: %v", removed)
	}

	got, _, _ = root.Get("books.1.tags")
	arr = got.([]any)
	if len(arr) != 2 || arr[0] != "a" || arr[1] != "d" {
		t.Fatalf("unexpected array after remove: %v", arr)
	}
}

// e. setDiff is a no-op under strict equality, setDiffDeep compares
// structurally.
func TestSetDiffSkipsWriteWhenUnchanged(t *testing.T) {
	m := newModel()
	root := m.Root()

	if _, err := root.Set("books.1.title", "Dune", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var changes int
	root.On(events.Change, func(events.Event) { changes++ })

	if _, err := root.SetDiff("books.1.title", "Dune", nil); err != nil {
		t.Fatalf("SetDiff: %v", err)
	}
	if changes != 0 {
		t.Fatalf("expected no change event, got %d", changes)
	}

	if _, err := root.SetDiff("books.1.title", "Dune Messiah", nil); err != nil {
		t.Fatalf("SetDiff: %v", err)
	}
	if changes != 1 {
		t.Fatalf("expected one change event, got %d", changes)
	}
}

func TestSetDiffDeepComparesStructurally(t *testing.T) {
	m := newModel()
	root := m.Root()

	if _, err := root.Set("books.1.meta", map[string]any{"pages": float64(400)}, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var changes int
	root.On(events.Change, func(events.Event) { changes++ })

	if _, err := root.SetDiffDeep("books.1.meta", map[string]any{"pages": float64(400)}, nil); err != nil {
		t.Fatalf("SetDiffDeep: %v", err)
	}
	if changes != 0 {
		t.Fatalf("expected no change event for a structurally-equal map, got %d", changes)
	}
}

// f. subscribe propagation across two roots sharing a DocStore.
func TestSubscribePropagatesAcrossRoots(t *testing.T) {
	shared := docstore.NewSharedState()
	storeA := docstore.NewMemory(shared)
	storeB := docstore.NewMemory(shared)

	modelA := racer.New(storeA, nil, nil)
	modelB := racer.New(storeB, nil, nil)

	rootA := modelA.Root()
	rootB := modelB.Root()

	if _, err := rootB.Set("books.1.publishedAt", float64(1234), nil); err != nil {
		t.Fatalf("rootB.Set: %v", err)
	}

	if err := rootA.Subscribe(nil, "books.1"); err != nil {
		t.Fatalf("rootA.Subscribe: %v", err)
	}

	got, ok, err := rootA.Get("books.1.publishedAt")
	if err != nil || !ok {
		t.Fatalf("rootA.Get after subscribe: %v ok=%v", err, ok)
	}
	if got != float64(1234) {
		t.Fatalf("got %v, want 1234", got)
	}

	if _, err := rootB.Set("books.1.publishedAt", float64(5678), nil); err != nil {
		t.Fatalf("rootB.Set: %v", err)
	}

	got, ok, err = rootA.Get("books.1.publishedAt")
	if err != nil || !ok {
		t.Fatalf("rootA.Get after remote update: %v ok=%v", err, ok)
	}
	if got != float64(5678) {
		t.Fatalf("got %v, want 5678 after remote op propagated", got)
	}
}

func TestDelIsNoopWhenAbsent(t *testing.T) {
	m := newModel()
	root := m.Root()

	var removes int
	root.On(events.Remove, func(events.Event) { removes++ })

	prev, err := root.Del("books.1.title", nil)
	if err != nil {
		t.Fatalf("Del: %v", err)
	}
	if prev != nil {
		t.Fatalf("expected nil previous for no-op delete, got %v", prev)
	}
	if removes != 0 {
		t.Fatalf("expected no remove event, got %d", removes)
	}
}

func TestAddAssignsIdWhenMissing(t *testing.T) {
	m := newModel()
	root := m.Root()

	id, err := root.Add("books", map[string]any{"title": "Dune"}, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	got, ok, err := root.Get("books." + id + ".title")
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	if got != "Dune" {
		t.Fatalf("got %v, want Dune", got)
	}
}

func TestHandleAtScopesPath(t *testing.T) {
	m := newModel()
	root := m.Root()

	book, err := root.At("books.1")
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if _, err := book.Set("title", "Dune", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := root.Get("books.1.title")
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	if got != "Dune" {
		t.Fatalf("got %v, want Dune", got)
	}
}

func TestSilentSetSuppressesListenersUnlessEventContextMatches(t *testing.T) {
	m := newModel()
	root := m.Root()

	var fired int
	root.On(events.Change, func(events.Event) { fired++ })

	quiet := root.WithSilent(true)
	if _, err := quiet.Set("books.1.title", "Dune", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if fired != 0 {
		t.Fatalf("expected silent set to suppress listener, fired=%d", fired)
	}

	loud := root.WithSilent(true).WithEventContext("import")
	matching := root.WithEventContext("import")
	var matched int
	matching.On(events.Change, func(events.Event) { matched++ })

	if _, err := loud.Set("books.1.title", "Dune Messiah", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if matched != 1 {
		t.Fatalf("expected matching eventContext listener to fire once, got %d", matched)
	}
}

func TestFetchUnfetchReleasesDocSubscriptionState(t *testing.T) {
	store := docstore.NewMemory(nil)

	m := racer.New(store, nil, nil)
	root := m.Root()

	if err := root.Fetch(nil, "books.1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := countFetches(m); n != 1 {
		t.Fatalf("expected 1 outstanding fetch after Fetch, got %d", n)
	}
	root.Unfetch("books.1")
	if n := countFetches(m); n != 0 {
		t.Fatalf("expected no outstanding fetch after Unfetch, got %d", n)
	}
}

func countFetches(m *racer.Model) int {
	n := 0
	for _, cs := range m.Bundle().Contexts {
		n += len(cs.Fetches)
	}
	return n
}
