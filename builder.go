package routecraft

import "context"

// pendingRoute accumulates steps for the route currently under
// construction, materialized into a RouteDefinition once the next
// From (or Build) appears.
type pendingRoute struct {
	id       string
	source   Source
	consumer Consumer
	steps    []Step
}

// Builder is the fluent DSL for constructing route definitions. Its
// semantics, not its syntax, are what §4.9 specifies: id() and batch()
// stage configuration for the *next* From, every From without a staged
// id gets a fresh one, and any step method called before the first From
// is a sticky error surfaced by Build.
type Builder struct {
	defs []RouteDefinition

	pendingID    string
	pendingBatch *BatchOptions

	current *pendingRoute
	err     error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ID stages id for the next From; it has no effect on the route
// currently being built.
func (b *Builder) ID(id string) *Builder {
	b.pendingID = id
	return b
}

// Batch stages a BatchConsumer descriptor for the next From. The staged
// descriptor is consumed (and cleared) as soon as that From runs; it
// does not apply to any route after that one.
func (b *Builder) Batch(opts BatchOptions) *Builder {
	o := opts
	b.pendingBatch = &o
	return b
}

// From starts a new route from src, materializing whatever route was
// previously under construction. If no id was staged via ID, a fresh
// unique id is allocated. If a batch descriptor was staged via Batch,
// this route gets a BatchConsumer; otherwise a SimpleConsumer.
func (b *Builder) From(src Source) *Builder {
	b.flushCurrent()

	id := b.pendingID
	if id == "" {
		id = newID()
	}
	b.pendingID = ""

	var consumer Consumer
	if b.pendingBatch != nil {
		consumer = NewBatchConsumer(*b.pendingBatch)
		b.pendingBatch = nil
	} else {
		consumer = NewSimpleConsumer()
	}

	b.current = &pendingRoute{id: id, source: src, consumer: consumer}
	return b
}

// FromFunc is a convenience wrapper accepting a bare Source function.
func (b *Builder) FromFunc(fn func(ctx context.Context, emit Emit) error) *Builder {
	return b.From(SourceFunc(fn))
}

func (b *Builder) addStep(s Step) *Builder {
	if b.current == nil {
		if b.err == nil {
			b.err = errMissingFrom()
		}
		return b
	}
	b.current.steps = append(b.current.steps, s)
	return b
}

// Process appends a process() step to the route under construction.
func (b *Builder) Process(p Processor) *Builder { return b.addStep(Process(p)) }

// ProcessFunc appends a process() step built from a bare function.
func (b *Builder) ProcessFunc(fn func(ex *Exchange) (*Exchange, error)) *Builder {
	return b.addStep(ProcessFunc(fn))
}

// Transform appends a transform() step to the route under construction.
func (b *Builder) Transform(t Transformer) *Builder { return b.addStep(Transform(t)) }

// TransformFunc appends a transform() step built from a bare function.
func (b *Builder) TransformFunc(fn func(body any) (any, error)) *Builder {
	return b.addStep(TransformFunc(fn))
}

// To appends a to() step to the route under construction.
func (b *Builder) To(d Destination) *Builder { return b.addStep(To(d)) }

// ToFunc appends a to() step built from a bare function.
func (b *Builder) ToFunc(fn func(ex *Exchange) error) *Builder {
	return b.addStep(ToFunc(fn))
}

// Tap appends a tap() step to the route under construction.
func (b *Builder) Tap(t Tapper) *Builder { return b.addStep(Tap(t)) }

// TapFunc appends a tap() step built from a bare function.
func (b *Builder) TapFunc(fn func(ex *Exchange) error) *Builder {
	return b.addStep(TapStepFunc(fn))
}

// Filter appends a filter() step to the route under construction.
func (b *Builder) Filter(f Filterer) *Builder { return b.addStep(Filter(f)) }

// FilterFunc appends a filter() step built from a bare function.
func (b *Builder) FilterFunc(fn func(ex *Exchange) (bool, error)) *Builder {
	return b.addStep(FilterStepFunc(fn))
}

// Split appends a split() step to the route under construction.
func (b *Builder) Split(s Splitter) *Builder { return b.addStep(Split(s)) }

// SplitFunc appends a split() step built from a bare function.
func (b *Builder) SplitFunc(fn func(ex *Exchange) ([]any, error)) *Builder {
	return b.addStep(SplitStepFunc(fn))
}

// Aggregate appends an aggregate() step to the route under construction.
func (b *Builder) Aggregate(a Aggregator) *Builder { return b.addStep(Aggregate(a)) }

// AggregateFunc appends an aggregate() step built from a bare function.
func (b *Builder) AggregateFunc(fn func(exs []*Exchange) (any, error)) *Builder {
	return b.addStep(AggregateStepFunc(fn))
}

// flushCurrent materializes the route under construction, if any, into
// a RouteDefinition.
func (b *Builder) flushCurrent() {
	if b.current == nil {
		return
	}
	b.defs = append(b.defs, RouteDefinition{
		ID:       b.current.id,
		Source:   b.current.source,
		Steps:    b.current.steps,
		Consumer: b.current.consumer,
	})
	b.current = nil
}

// Build materializes every accumulated route and returns the resulting
// definitions, or the sticky missing-from error if any step method was
// called before the first From.
func (b *Builder) Build() ([]RouteDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.flushCurrent()
	return b.defs, nil
}

// BuildInto builds every accumulated route and registers them on ctx in
// one call.
func (b *Builder) BuildInto(ctx *Context) error {
	defs, err := b.Build()
	if err != nil {
		return err
	}
	return ctx.RegisterRoutes(defs...)
}
