package routecraft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestDirectSendDeliversToTheRegisteredConsumer(t *testing.T) {
	registry := NewDirectRegistry(NewDiscardLogger(), NewEventBus(NewDiscardLogger()))

	var got any
	handler := ChannelHandler(func(m Message) error {
		got = m.Body
		return nil
	})
	if err := registry.registerSource("ep", handler, DirectOptions{}); err != nil {
		t.Fatalf("registerSource: %v", err)
	}

	ex := &Exchange{Body: "payload"}
	if err := registry.send("ep", ex, "r1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got != "payload" {
		t.Fatalf("got %v, want payload", got)
	}
}

func TestDirectSendToUnknownEndpointFails(t *testing.T) {
	events := NewEventBus(NewDiscardLogger())
	var fired Event
	events.On(EventError, func(e Event) { fired = e })

	registry := NewDirectRegistry(NewDiscardLogger(), events)
	err := registry.send("nope", &Exchange{Body: "x"}, "r1")
	if err == nil {
		t.Fatal("expected an error sending to an endpoint with no consumer")
	}
	rcErr, ok := err.(*Error)
	if !ok || rcErr.Code != CodeDirectNoConsumer {
		t.Fatalf("err = %v, want CodeDirectNoConsumer", err)
	}
	if fired.Kind != EventError {
		t.Fatal("expected an error event to be fired")
	}
}

func TestDirectRegisterSourceRejectsDuplicateEndpoint(t *testing.T) {
	registry := NewDirectRegistry(NewDiscardLogger(), NewEventBus(NewDiscardLogger()))
	noop := ChannelHandler(func(Message) error { return nil })

	if err := registry.registerSource("ep", noop, DirectOptions{}); err != nil {
		t.Fatalf("first registerSource: %v", err)
	}
	err := registry.registerSource("ep", noop, DirectOptions{})
	if err == nil {
		t.Fatal("expected a duplicate-endpoint error")
	}
	rcErr, ok := err.(*Error)
	if !ok || rcErr.Code != CodeDirectDuplicateEndpoint {
		t.Fatalf("err = %v, want CodeDirectDuplicateEndpoint", err)
	}
}

func TestDirectSchemaValidationFailureRejectsWithRC5011(t *testing.T) {
	events := NewEventBus(NewDiscardLogger())
	var mu sync.Mutex
	var fired []*Error
	events.On(EventError, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if rcErr, ok := e.Err.(*Error); ok {
			fired = append(fired, rcErr)
		}
	})

	registry := NewDirectRegistry(NewDiscardLogger(), events)

	var collectedCalled bool
	handler := ChannelHandler(func(Message) error {
		collectedCalled = true
		return nil
	})
	validator := SchemaValidatorFunc(func(body any) error {
		url, ok := body.(string)
		if !ok || !isValidURL(url) {
			return errors.New("body is not a valid url")
		}
		return nil
	})

	if err := registry.registerSource("webhook", handler, DirectOptions{Schema: validator}); err != nil {
		t.Fatalf("registerSource: %v", err)
	}

	err := registry.send("webhook", &Exchange{Body: "not-a-url"}, "r1")
	if err == nil {
		t.Fatal("expected a schema validation error")
	}
	rcErr, ok := err.(*Error)
	if !ok || rcErr.Code != CodeDirectSchemaValidation {
		t.Fatalf("err = %v, want CodeDirectSchemaValidation", err)
	}
	if rcErr.NumericID != RC5011 {
		t.Fatalf("NumericID = %q, want %q", rcErr.NumericID, RC5011)
	}
	if collectedCalled {
		t.Fatal("the consumer handler must not run when schema validation fails")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0].Code != CodeDirectSchemaValidation {
		t.Fatalf("fired = %v, want exactly 1 CodeDirectSchemaValidation event", fired)
	}
}

func isValidURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || s[:8] == "https://")
}

func TestDirectSourceRegistersAndUnregistersAcrossItsLifetime(t *testing.T) {
	registry := NewDirectRegistry(NewDiscardLogger(), NewEventBus(NewDiscardLogger()))
	src := registry.Source("ep", DirectOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		close(started)
		finished <- src.Subscribe(ctx, func(any, Headers) {})
	}()
	<-started

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := registry.lookup("ep"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the direct source to register")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("Subscribe returned %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Subscribe to return after cancel")
	}

	if _, ok := registry.lookup("ep"); ok {
		t.Fatal("expected the endpoint to be unregistered once Subscribe returns")
	}
}

func TestDirectDestinationUsesResolver(t *testing.T) {
	registry := NewDirectRegistry(NewDiscardLogger(), NewEventBus(NewDiscardLogger()))
	var got string
	registry.registerSource("dyn", ChannelHandler(func(m Message) error {
		got = fmt.Sprint(m.Body)
		return nil
	}), DirectOptions{})

	dest := registry.Destination(StaticEndpoint("dyn"))
	if err := dest.Send(&Exchange{Body: "hi", Headers: Headers{}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "hi" {
		t.Fatalf("got %q, want hi", got)
	}
}
