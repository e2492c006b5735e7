package loader_test

import (
	"errors"
	"testing"
	"time"

	"github.com/racer-model/racer/loader"
)

func TestFetchSharedAcrossTwoContextsIssuesOneLoad(t *testing.T) {
	c := loader.New()
	loads := 0
	load := func(onSettled func(error)) func() {
		loads++
		onSettled(nil)
		return nil
	}
	key := loader.DocKey("books", "1")

	c.Fetch("ctxA", key, load, nil)
	c.Fetch("ctxB", key, load, nil)

	if loads != 1 {
		t.Fatalf("expected 1 load, got %d", loads)
	}
	if c.StateOf(key) != loader.Resident {
		t.Fatalf("expected Resident, got %v", c.StateOf(key))
	}
}

func TestUnfetchDropsToUnloadingThenAbsent(t *testing.T) {
	c := loader.New()
	key := loader.DocKey("books", "1")
	load := func(onSettled func(error)) func() {
		onSettled(nil)
		return nil
	}
	c.Fetch("ctxA", key, load, nil)
	c.Unfetch("ctxA", key)

	if c.StateOf(key) != loader.Absent {
		t.Fatalf("expected immediate Absent with zero unload delay, got %v", c.StateOf(key))
	}
}

func TestUnloadDelayDebouncesTransition(t *testing.T) {
	key := loader.DocKey("books", "1")
	load := func(onSettled func(error)) func() {
		onSettled(nil)
		return nil
	}
	var transitions []loader.State
	c := loader.New(loader.WithUnloadDelay(time.Hour), loader.WithWatcher(func(k loader.ItemKey, from, to loader.State) {
		transitions = append(transitions, to)
	}))

	c.Fetch("ctxA", key, load, nil)
	c.Unfetch("ctxA", key)

	if c.StateOf(key) != loader.Unloading {
		t.Fatalf("expected Unloading while delay pending, got %v", c.StateOf(key))
	}
	if len(transitions) == 0 || transitions[len(transitions)-1] != loader.Unloading {
		t.Fatalf("expected last transition Unloading, got %v", transitions)
	}
}

func TestRefetchDuringUnloadingCancelsPendingUnload(t *testing.T) {
	c := loader.New(loader.WithUnloadDelay(time.Hour))
	key := loader.DocKey("books", "1")
	load := func(onSettled func(error)) func() {
		onSettled(nil)
		return nil
	}
	c.Fetch("ctxA", key, load, nil)
	c.Unfetch("ctxA", key)
	if c.StateOf(key) != loader.Unloading {
		t.Fatal("expected Unloading")
	}
	c.Fetch("ctxA", key, load, nil)
	if c.StateOf(key) != loader.Resident {
		t.Fatalf("expected Resident after re-fetch, got %v", c.StateOf(key))
	}
}

func TestSubscribeDowngradesToFetchOnlyMode(t *testing.T) {
	c := loader.New(loader.WithFetchOnly(true))
	key := loader.DocKey("books", "1")
	load := func(onSettled func(error)) func() {
		onSettled(nil)
		return nil
	}
	c.Subscribe("ctxA", key, load, nil)
	if c.StateOf(key) != loader.Resident {
		t.Fatalf("expected Resident, got %v", c.StateOf(key))
	}
}

func TestLoadErrorReturnsToAbsent(t *testing.T) {
	c := loader.New()
	key := loader.DocKey("books", "1")
	boom := errors.New("boom")
	var got error
	load := func(onSettled func(error)) func() {
		onSettled(boom)
		return nil
	}
	c.Fetch("ctxA", key, load, func(err error) { got = err })

	if got != boom {
		t.Fatalf("expected boom, got %v", got)
	}
	if c.StateOf(key) != loader.Absent {
		t.Fatalf("expected Absent after error, got %v", c.StateOf(key))
	}
}

func TestWhenNothingPendingWaitsForInFlightLoad(t *testing.T) {
	c := loader.New()
	key := loader.DocKey("books", "1")
	var settle func(error)
	load := func(onSettled func(error)) func() {
		settle = onSettled
		return nil
	}
	c.Fetch("ctxA", key, load, nil)

	fired := false
	c.WhenNothingPending(func() { fired = true })
	c.Drain()
	if fired {
		t.Fatal("should not fire while load is pending")
	}

	settle(nil)
	c.Drain()
	if !fired {
		t.Fatal("expected WhenNothingPending to fire once load settled")
	}
}

func TestContextItemsReflectsOutstandingReferences(t *testing.T) {
	c := loader.New()
	docKey := loader.DocKey("books", "1")
	queryKey := loader.QueryKey("books", "hash1")
	load := func(onSettled func(error)) func() {
		onSettled(nil)
		return nil
	}
	c.Fetch("ctxA", docKey, load, nil)
	c.Subscribe("ctxA", queryKey, load, nil)

	fetches, subs := c.ContextItems("ctxA")
	if len(fetches) != 1 || fetches[0] != docKey {
		t.Fatalf("expected one fetch of %v, got %v", docKey, fetches)
	}
	if len(subs) != 1 || subs[0] != queryKey {
		t.Fatalf("expected one subscribe of %v, got %v", queryKey, subs)
	}
}

func TestUnloadAllContextReleasesEveryReference(t *testing.T) {
	c := loader.New()
	key := loader.DocKey("books", "1")
	load := func(onSettled func(error)) func() {
		onSettled(nil)
		return nil
	}
	c.Fetch("ctxA", key, load, nil)
	c.Subscribe("ctxA", key, load, nil)

	c.UnloadAllContext("ctxA")

	if c.StateOf(key) != loader.Absent {
		t.Fatalf("expected Absent after UnloadAllContext, got %v", c.StateOf(key))
	}
	fetches, subs := c.ContextItems("ctxA")
	if len(fetches) != 0 || len(subs) != 0 {
		t.Fatalf("expected no outstanding references, got fetches=%v subs=%v", fetches, subs)
	}
}

func TestWhenNothingPendingNeverFiresSynchronously(t *testing.T) {
	c := loader.New()
	fired := false
	c.WhenNothingPending(func() { fired = true })
	if fired {
		t.Fatal("WhenNothingPending must not fire synchronously")
	}
	c.Drain()
	if !fired {
		t.Fatal("expected fire after Drain with nothing pending")
	}
}
