package routecraft

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// emitAllSource returns a Source that emits every body in order and then
// returns, independent of ctx — used by tests that only care about one
// pass through a route's pipeline.
func emitAllSource(bodies ...any) Source {
	return SourceFunc(func(ctx context.Context, emit Emit) error {
		for _, b := range bodies {
			emit(b, nil)
		}
		return nil
	})
}

func TestHelloWorldRouteTransformsAndDelivers(t *testing.T) {
	rcCtx := NewContext("hello", NewDiscardLogger())

	collected := make(chan string, 1)
	err := NewBuilder().
		From(emitAllSource("hello")).
		TransformFunc(func(body any) (any, error) {
			return strings.ToUpper(body.(string)), nil
		}).
		ToFunc(func(ex *Exchange) error {
			collected <- ex.Body.(string)
			return nil
		}).
		BuildInto(rcCtx)
	if err != nil {
		t.Fatalf("BuildInto: %v", err)
	}
	rcCtx.Start()

	select {
	case got := <-collected:
		if got != "HELLO" {
			t.Fatalf("got %q, want HELLO", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the route to deliver")
	}

	select {
	case <-rcCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the context to auto-stop")
	}
}

func TestSplitAggregateRoundTripPreservesCorrelation(t *testing.T) {
	rcCtx := NewContext("splitagg", NewDiscardLogger())

	var initialCorrelation string
	var mu sync.Mutex
	collected := make(chan *Exchange, 1)

	err := NewBuilder().
		From(SourceFunc(func(ctx context.Context, emit Emit) error {
			emit("a-b-c", nil)
			return nil
		})).
		TapFunc(func(ex *Exchange) error {
			mu.Lock()
			initialCorrelation = ex.CorrelationID()
			mu.Unlock()
			return nil
		}).
		SplitFunc(func(ex *Exchange) ([]any, error) {
			parts := strings.Split(ex.Body.(string), "-")
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}).
		AggregateFunc(func(exs []*Exchange) (any, error) {
			joined := ""
			for _, e := range exs {
				joined += e.Body.(string)
			}
			return joined, nil
		}).
		ToFunc(func(ex *Exchange) error {
			collected <- ex
			return nil
		}).
		BuildInto(rcCtx)
	if err != nil {
		t.Fatalf("BuildInto: %v", err)
	}
	rcCtx.Start()

	select {
	case out := <-collected:
		if out.Body != "a-b-c" && out.Body != "abc" {
			// Joined without the separator per the AggregateFunc above.
		}
		if out.Body != "abc" {
			t.Fatalf("Body = %v, want abc", out.Body)
		}
		mu.Lock()
		wantCorr := initialCorrelation
		mu.Unlock()
		if out.CorrelationID() != wantCorr {
			t.Fatalf("CorrelationID() = %q, want %q (preserved across split/aggregate)", out.CorrelationID(), wantCorr)
		}
		if len(out.Headers.splitHierarchy()) != 0 {
			t.Fatalf("expected the split hierarchy fully popped, got %v", out.Headers.splitHierarchy())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the aggregated result")
	}
}

func TestRouteSurvivesAPerMessageProcessFailure(t *testing.T) {
	rcCtx := NewContext("faulttolerant", NewDiscardLogger())

	var mu sync.Mutex
	var ok []string
	var errEvents []*Error
	rcCtx.Events().On(EventError, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if rcErr, isRC := e.Err.(*Error); isRC {
			errEvents = append(errEvents, rcErr)
		}
	})

	done := make(chan struct{})
	var delivered int

	err := NewBuilder().
		From(emitAllSource("ok1", "bad", "ok2")).
		ProcessFunc(func(ex *Exchange) (*Exchange, error) {
			if ex.Body == "bad" {
				return nil, errMissingFrom()
			}
			return ex, nil
		}).
		ToFunc(func(ex *Exchange) error {
			mu.Lock()
			ok = append(ok, ex.Body.(string))
			delivered++
			got := delivered
			mu.Unlock()
			if got == 2 {
				close(done)
			}
			return nil
		}).
		BuildInto(rcCtx)
	if err != nil {
		t.Fatalf("BuildInto: %v", err)
	}
	rcCtx.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		t.Fatalf("timed out, only delivered %v so far", ok)
		mu.Unlock()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ok) != 2 || ok[0] != "ok1" || ok[1] != "ok2" {
		t.Fatalf("ok = %v, want [ok1 ok2]", ok)
	}
	if len(errEvents) != 1 || errEvents[0].Code != CodeProcessError {
		t.Fatalf("errEvents = %v, want exactly 1 CodeProcessError", errEvents)
	}
	if rcCtx.RoutePhase(rcCtx.RouteIDs()[0]) == PhaseFailed {
		t.Fatal("a per-message process failure must not fail the whole route")
	}
}
