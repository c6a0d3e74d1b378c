package routecraft

import "sync"

// Event kinds the bus delivers to observers, exactly the set spec'd as
// external interfaces.
const (
	EventContextStarting = "contextStarting"
	EventContextStarted  = "contextStarted"
	EventContextStopping = "contextStopping"
	EventContextStopped  = "contextStopped"
	EventRouteRegistered = "routeRegistered"
	EventRouteStarting   = "routeStarting"
	EventRouteStarted    = "routeStarted"
	EventRouteStopping   = "routeStopping"
	EventRouteStopped    = "routeStopped"
	EventError           = "error"
)

// Origin values for an EventError payload's Origin field.
const (
	OriginContext  = "context"
	OriginStartup  = "startup"
	OriginShutdown = "shutdown"
)

// Event is the payload delivered to an observer. RouteID is populated
// for route-scoped kinds; for EventError, Err and Origin are populated
// (Origin is either a route id or one of OriginContext/OriginStartup/
// OriginShutdown).
type Event struct {
	Kind    string
	RouteID string
	Err     error
	Origin  string
}

// Observer receives one Event. An observer that panics or never returns
// is the caller's problem to avoid; the bus only isolates ordinary
// (non-panicking) failures by virtue of observers not returning errors —
// there is nothing for the bus to catch except a panic, which it does
// recover and log, matching the "fire-and-forget, isolate observer
// faults" design note.
type Observer func(Event)

// EventBus is a kind-keyed, ordered-observer broadcaster. Structurally
// it keeps the nil-safe, mutex-guarded subscriber bookkeeping of the
// teacher's channel-broadcast Bus, restructured from "subscribers
// receive on a channel" to "subscribers are synchronous callbacks
// invoked in registration order" per the observer contract in §6 — the
// core calls each kind's observers itself rather than asking them to
// drain a channel.
type EventBus struct {
	logger Logger

	mu        sync.Mutex
	observers map[string][]Observer
}

// NewEventBus returns an empty bus. Safe for concurrent use once
// constructed; safe to call on a nil *EventBus (every method below is a
// no-op on nil, so a Context need not guard against an unconfigured
// bus).
func NewEventBus(logger Logger) *EventBus {
	return &EventBus{
		logger:    logger,
		observers: make(map[string][]Observer),
	}
}

// On registers observer for kind, appended after any existing observers
// for that kind.
func (b *EventBus) On(kind string, observer Observer) {
	if b == nil || observer == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[kind] = append(b.observers[kind], observer)
}

// fire invokes every kind observer in registration order. A panicking
// observer is recovered, logged, and skipped; it never prevents later
// observers in the same kind from running, and never propagates to the
// component that fired the event.
func (b *EventBus) fire(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	observers := append([]Observer(nil), b.observers[e.Kind]...)
	b.mu.Unlock()

	for _, obs := range observers {
		b.invoke(obs, e)
	}
}

func (b *EventBus) invoke(obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event observer panicked", "kind", e.Kind, "panic", r)
		}
	}()
	obs(e)
}

// fireError is the helper every error-raising site uses: it builds the
// EventError payload and fires it under EventError, carrying origin
// (a route id, or one of the Origin* constants).
func (b *EventBus) fireError(err error, origin string) {
	b.fire(Event{Kind: EventError, Err: err, Origin: origin})
}
