package routecraft

import (
	"context"
	"sync"
	"testing"
	"time"
)

func blockingSource() Source {
	return SourceFunc(func(ctx context.Context, emit Emit) error {
		<-ctx.Done()
		return ignoreCancellation(ctx.Err())
	})
}

func TestRegisterRoutesRejectsDuplicateIDAndRegistersNeither(t *testing.T) {
	rcCtx := NewContext("dup", NewDiscardLogger())

	defs := []RouteDefinition{
		{ID: "r1", Source: blockingSource()},
		{ID: "r1", Source: blockingSource()},
	}
	if err := rcCtx.RegisterRoutes(defs...); err == nil {
		t.Fatal("expected an error registering two routes with the same id")
	}
	if len(rcCtx.RouteIDs()) != 0 {
		t.Fatalf("expected neither route registered, got %v", rcCtx.RouteIDs())
	}
}

func TestRegisterRoutesRejectsIDAlreadyLive(t *testing.T) {
	rcCtx := NewContext("dup2", NewDiscardLogger())
	if err := rcCtx.RegisterRoutes(RouteDefinition{ID: "r1", Source: blockingSource()}); err != nil {
		t.Fatalf("first RegisterRoutes: %v", err)
	}
	if err := rcCtx.RegisterRoutes(RouteDefinition{ID: "r1", Source: blockingSource()}); err == nil {
		t.Fatal("expected an error re-registering an existing route id")
	}
	if len(rcCtx.RouteIDs()) != 1 {
		t.Fatalf("expected exactly 1 registered route, got %v", rcCtx.RouteIDs())
	}
}

func TestContextLifecycleEventsFireInOrder(t *testing.T) {
	rcCtx := NewContext("lifecycle", NewDiscardLogger())

	var mu sync.Mutex
	var kinds []string
	record := func(kind string) Observer {
		return func(e Event) {
			mu.Lock()
			kinds = append(kinds, kind)
			mu.Unlock()
		}
	}
	for _, kind := range []string{
		EventContextStarting, EventContextStarted,
		EventRouteRegistered, EventRouteStarting, EventRouteStarted,
		EventRouteStopping, EventRouteStopped,
		EventContextStopping, EventContextStopped,
	} {
		rcCtx.Events().On(kind, record(kind))
	}

	if err := rcCtx.RegisterRoutes(RouteDefinition{ID: "r1", Source: emitAllSource("x")}); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	rcCtx.Start()

	select {
	case <-rcCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the context to stop")
	}
	// Let the final contextStopped observer invocation land; fire is
	// synchronous but Stop() can race Done() closing under -race.
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		EventRouteRegistered,
		EventContextStarting, EventContextStarted,
		EventRouteStarting, EventRouteStarted,
		EventRouteStopping, EventRouteStopped,
		EventContextStopping, EventContextStopped,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("event %d = %q, want %q (full sequence %v)", i, kinds[i], k, kinds)
		}
	}
}

func TestContextWithZeroRoutesAutoStops(t *testing.T) {
	rcCtx := NewContext("empty", NewDiscardLogger())
	rcCtx.Start()

	select {
	case <-rcCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a zero-route context to auto-stop")
	}
}

func TestContextStopCascadesToBlockingRoutes(t *testing.T) {
	rcCtx := NewContext("cascade", NewDiscardLogger())
	if err := rcCtx.RegisterRoutes(RouteDefinition{ID: "r1", Source: blockingSource()}); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	rcCtx.Start()

	// Give the route a moment to reach Running before we stop it.
	deadline := time.Now().Add(2 * time.Second)
	for rcCtx.RoutePhase("r1") != PhaseRunning {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the route to start running")
		}
		time.Sleep(time.Millisecond)
	}

	rcCtx.Stop()

	select {
	case <-rcCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Stop to cascade and the context to finish")
	}
}

func TestStoreGetSetDelete(t *testing.T) {
	rcCtx := NewContext("store", NewDiscardLogger())
	store := rcCtx.Store()

	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected Get on an absent key to report ok=false")
	}
	if err := store.Set("k", 42); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := store.Get("k")
	if !ok || v != 42 {
		t.Fatalf("Get() = (%v, %v), want (42, true)", v, ok)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get("k"); ok {
		t.Fatal("expected the key to be gone after Delete")
	}
}
