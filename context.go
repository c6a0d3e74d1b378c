package routecraft

import (
	"context"
	"sync"
)

// Hook runs at context startup/shutdown. A failing hook is logged and
// reported as an error event; it never aborts the Context's own
// start/stop sequence.
type Hook func(*Context) error

// ContextOption configures a Context at construction time.
type ContextOption func(*Context)

// WithStartupHook runs h once, after contextStarting fires and before
// contextStarted fires.
func WithStartupHook(h Hook) ContextOption {
	return func(c *Context) { c.startupHook = h }
}

// WithShutdownHook runs h once, after every route's token has been
// aborted and before contextStopped fires.
func WithShutdownHook(h Hook) ContextOption {
	return func(c *Context) { c.shutdownHook = h }
}

// WithStoreBackend swaps the typed store's backend from the in-memory
// default to a durable one (see the sqlitestore adapter).
func WithStoreBackend(b Backend) ContextOption {
	return func(c *Context) { c.store = newStore(b) }
}

// Context supervises a set of routes, a shared typed store and an event
// bus, and coordinates their shared start/stop lifecycle. Route ids are
// unique within one Context.
type Context struct {
	ID       string
	logger   Logger
	events   *EventBus
	store    *Store
	channels *ChannelBus
	direct   *DirectRegistry

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu          sync.Mutex
	routes      map[string]*Route
	endedRoutes map[string]struct{}
	started     bool
	stopped     bool

	startupHook  Hook
	shutdownHook Hook
}

// NewContext returns a Context identified by id, logging through logger
// (a discard logger is used if logger is nil).
func NewContext(id string, logger Logger, opts ...ContextOption) *Context {
	if logger == nil {
		logger = NewDiscardLogger()
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())

	events := NewEventBus(logger)
	c := &Context{
		ID:          id,
		logger:      logger,
		events:      events,
		store:       newStore(nil),
		channels:    NewChannelBus(logger),
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		routes:      make(map[string]*Route),
		endedRoutes: make(map[string]struct{}),
	}
	c.direct = NewDirectRegistry(logger, events)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the Context's shared typed store.
func (c *Context) Store() *Store { return c.store }

// Events returns the Context's event bus, for registering observers via
// On before Start.
func (c *Context) Events() *EventBus { return c.events }

// Channels returns the Context's named pub/sub fabric.
func (c *Context) Channels() *ChannelBus { return c.channels }

// Direct returns the Context's direct/tool endpoint registry.
func (c *Context) Direct() *DirectRegistry { return c.direct }

// RegisterRoutes validates that every definition's id is unique among
// the batch and against already-registered routes, then creates a live
// Route for each and fires routeRegistered. On a duplicate id, nothing
// in the batch is registered.
func (c *Context) RegisterRoutes(defs ...RouteDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := seen[d.ID]; dup {
			return errDuplicateRouteID(d.ID)
		}
		if _, exists := c.routes[d.ID]; exists {
			return errDuplicateRouteID(d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	for _, d := range defs {
		c.routes[d.ID] = newRoute(c, d)
	}
	for _, d := range defs {
		c.events.fire(Event{Kind: EventRouteRegistered, RouteID: d.ID})
	}
	return nil
}

// RouteIDs returns every currently registered route id.
func (c *Context) RouteIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.routes))
	for id := range c.routes {
		ids = append(ids, id)
	}
	return ids
}

// RoutePhase reports the live phase of a registered route, or "" if no
// such route exists.
func (c *Context) RoutePhase(id string) RoutePhase {
	c.mu.Lock()
	r, ok := c.routes[id]
	c.mu.Unlock()
	if !ok {
		return ""
	}
	return r.Phase()
}

// Start fires contextStarting, runs the startup hook, fires
// contextStarted, then launches every registered route concurrently.
// Start returns as soon as every route's goroutine has been launched;
// it does not wait for any route to finish. Calling Start twice is a
// no-op.
func (c *Context) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	routes := make([]*Route, 0, len(c.routes))
	for _, r := range c.routes {
		routes = append(routes, r)
	}
	c.mu.Unlock()

	c.events.fire(Event{Kind: EventContextStarting})

	if c.startupHook != nil {
		if err := c.runHook(c.startupHook); err != nil {
			wrapped := newError(CodeUnknownError, "", "startup hook failed", err)
			c.events.fireError(wrapped, OriginStartup)
		}
	}

	c.events.fire(Event{Kind: EventContextStarted})

	if len(routes) == 0 {
		// Vacuously, every route (there are none) has ended.
		go c.Stop()
		return nil
	}

	for _, r := range routes {
		go r.run()
	}
	return nil
}

// runHook recovers a panicking hook into an error so it is reported
// through the same error-event path as a returned error.
func (c *Context) runHook(h Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(CodeUnknownError, "", "hook panicked", nil)
		}
	}()
	return h(c)
}

// routeEnded is called by a Route once its lifecycle completes. When
// every registered route has ended, the Context auto-stops, per the
// design note that auto-stop fires only once all routes are done.
func (c *Context) routeEnded(id string) {
	c.mu.Lock()
	c.endedRoutes[id] = struct{}{}
	allEnded := len(c.endedRoutes) >= len(c.routes)
	c.mu.Unlock()

	if allEnded {
		c.Stop()
	}
}

// Stop fires contextStopping, aborts every route's cancellation token,
// runs the shutdown hook, and fires contextStopped. Idempotent.
func (c *Context) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	routes := make([]*Route, 0, len(c.routes))
	for _, r := range c.routes {
		routes = append(routes, r)
	}
	c.mu.Unlock()

	c.events.fire(Event{Kind: EventContextStopping})

	for _, r := range routes {
		r.stop()
	}

	if c.shutdownHook != nil {
		if err := c.runHook(c.shutdownHook); err != nil {
			wrapped := newError(CodeUnknownError, "", "shutdown hook failed", err)
			c.events.fireError(wrapped, OriginShutdown)
		}
	}

	c.rootCancel()
	c.events.fire(Event{Kind: EventContextStopped})
}

// Done returns a channel closed once the Context's root cancellation
// fires, useful for a CLI entrypoint awaiting shutdown.
func (c *Context) Done() <-chan struct{} {
	return c.rootCtx.Done()
}
