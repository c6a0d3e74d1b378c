package routecraft

import (
	"context"
	"sync"
)

// SchemaValidator is the optional body-validation hook a direct endpoint
// may configure. A non-nil error fails the send with
// CodeDirectSchemaValidation (RC5011) and the message is not delivered.
type SchemaValidator interface {
	Validate(body any) error
}

// SchemaValidatorFunc adapts a bare function to SchemaValidator.
type SchemaValidatorFunc func(body any) error

// Validate calls f.
func (f SchemaValidatorFunc) Validate(body any) error { return f(body) }

// DirectMetadata is optional discovery metadata attached to an endpoint
// registration; the core never interprets it.
type DirectMetadata struct {
	Description string
	Keywords    []string
}

// DirectOptions configures a direct endpoint's Source-side registration.
type DirectOptions struct {
	Schema   SchemaValidator
	Metadata DirectMetadata
}

type directEndpoint struct {
	handler  ChannelHandler
	schema   SchemaValidator
	metadata DirectMetadata
}

// DirectRegistry is the name -> (consumer, optional schema, optional
// metadata) endpoint table backing the direct/tool adapter, generalized
// from the teacher's tools.Registry (map[string]*Tool, Register/Get/
// List/Execute) to enforce the one-consumer-per-name invariant and the
// schema-validation-on-send behavior §4.7 specifies.
type DirectRegistry struct {
	logger Logger
	events *EventBus

	mu        sync.Mutex
	endpoints map[string]*directEndpoint
}

// NewDirectRegistry returns an empty registry.
func NewDirectRegistry(logger Logger, events *EventBus) *DirectRegistry {
	return &DirectRegistry{
		logger:    logger,
		events:    events,
		endpoints: make(map[string]*directEndpoint),
	}
}

// registerSource claims endpoint for one consumer. Fails with
// CodeDirectDuplicateEndpoint if the endpoint already has a consumer.
func (r *DirectRegistry) registerSource(endpoint string, handler ChannelHandler, opts DirectOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[endpoint]; exists {
		return errDirectDuplicateEndpoint(endpoint)
	}
	r.endpoints[endpoint] = &directEndpoint{handler: handler, schema: opts.Schema, metadata: opts.Metadata}
	return nil
}

// unregister removes endpoint's consumer, freeing the name for reuse.
func (r *DirectRegistry) unregister(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, endpoint)
}

func (r *DirectRegistry) lookup(endpoint string) (*directEndpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep, ok := r.endpoints[endpoint]
	return ep, ok
}

// List returns every currently registered endpoint name, for discovery
// façades built on top of the registry.
func (r *DirectRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}

// Metadata returns the registered metadata for endpoint, or the zero
// value and false if the endpoint has no consumer.
func (r *DirectRegistry) Metadata(endpoint string) (DirectMetadata, bool) {
	ep, ok := r.lookup(endpoint)
	if !ok {
		return DirectMetadata{}, false
	}
	return ep.metadata, true
}

// send delivers one exchange's body to endpoint's consumer, validating
// against its schema first if one is configured. origin is the route id
// reported on a fired error event.
func (r *DirectRegistry) send(endpoint string, ex *Exchange, origin string) error {
	ep, ok := r.lookup(endpoint)
	if !ok {
		err := errDirectNoConsumer(endpoint)
		r.events.fireError(err, origin)
		return err
	}

	if ep.schema != nil {
		if verr := ep.schema.Validate(ex.Body); verr != nil {
			wrapped := errDirectSchemaValidation(endpoint, verr)
			r.events.fireError(wrapped, origin)
			return wrapped
		}
	}

	return ep.handler(Message{Body: ex.Body, Headers: ex.Headers})
}

// EndpointResolver picks the target endpoint name for an exchange,
// letting Destination route dynamically rather than to one fixed name.
type EndpointResolver func(*Exchange) string

// StaticEndpoint returns a resolver that always names endpoint.
func StaticEndpoint(endpoint string) EndpointResolver {
	return func(*Exchange) string { return endpoint }
}

// Destination returns a to() Destination that sends each exchange to
// the endpoint resolve names.
func (r *DirectRegistry) Destination(resolve EndpointResolver) Destination {
	return DestinationFunc(func(ex *Exchange) error {
		return r.send(resolve(ex), ex, ex.RouteID())
	})
}

// Source returns a from() Source that claims endpoint as its sole
// consumer for as long as the route runs, forwarding every delivered
// message into the route's pipeline via emit.
func (r *DirectRegistry) Source(endpoint string, opts DirectOptions) Source {
	return SourceFunc(func(ctx context.Context, emit Emit) error {
		handler := ChannelHandler(func(m Message) error {
			emit(m.Body, m.Headers)
			return nil
		})
		if err := r.registerSource(endpoint, handler, opts); err != nil {
			return err
		}
		defer r.unregister(endpoint)

		<-ctx.Done()
		return ignoreCancellation(ctx.Err())
	})
}

// ignoreCancellation reports an ordinary context.Canceled as a clean
// completion rather than a source failure, since route/context stop
// cancels every route's context as part of normal shutdown.
func ignoreCancellation(err error) error {
	if err == context.Canceled {
		return nil
	}
	return err
}
