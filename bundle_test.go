package racer_test

import (
	"testing"

	racer "github.com/racer-model/racer"
	"github.com/racer-model/racer/docstore"
)

func TestBundleUnbundleRoundTripsTreeAndRefs(t *testing.T) {
	src := racer.New(docstore.NewMemory(nil), nil, nil)
	root := src.Root()

	if _, err := root.Set("books.1.title", "Dune", nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := src.Ref("currentBook", "books.1"); err != nil {
		t.Fatalf("Ref: %v", err)
	}
	src.Filter("scifi", "books", map[string]any{"genre": "scifi"})

	b := src.Bundle()
	if b.Tree == nil {
		t.Fatal("expected a non-nil bundled tree")
	}
	if len(b.Refs) != 1 || len(b.Filters) != 1 {
		t.Fatalf("expected 1 ref and 1 filter, got %d refs, %d filters", len(b.Refs), len(b.Filters))
	}

	dst := racer.New(docstore.NewMemory(nil), nil, nil)
	if err := dst.Unbundle(b); err != nil {
		t.Fatalf("Unbundle: %v", err)
	}

	got, ok, err := dst.Root().Get("books.1.title")
	if err != nil || !ok {
		t.Fatalf("Get after unbundle: %v ok=%v", err, ok)
	}
	if got != "Dune" {
		t.Fatalf("got %v, want Dune", got)
	}
}

func TestUnbundleRejectsNilBundle(t *testing.T) {
	m := racer.New(docstore.NewMemory(nil), nil, nil)
	if err := m.Unbundle(nil); err == nil {
		t.Fatal("expected an error unbundling a nil bundle")
	}
}
