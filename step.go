package routecraft

// Destination is the terminal-sink capability invoked by a to() step.
// Implementations should be idempotent at their own discretion; the core
// never retries a failed send.
type Destination interface {
	Send(ex *Exchange) error
}

// DestinationFunc adapts a bare function to the Destination capability,
// the same func-type-implements-interface idiom as http.HandlerFunc.
type DestinationFunc func(ex *Exchange) error

// Send calls f.
func (f DestinationFunc) Send(ex *Exchange) error { return f(ex) }

// Processor is the capability invoked by a process() step. It may return
// an entirely new Exchange; the core does not assume purity.
type Processor interface {
	Process(ex *Exchange) (*Exchange, error)
}

// ProcessorFunc adapts a bare function to the Processor capability.
type ProcessorFunc func(ex *Exchange) (*Exchange, error)

// Process calls f.
func (f ProcessorFunc) Process(ex *Exchange) (*Exchange, error) { return f(ex) }

// Transformer is the capability invoked by a transform() step. Only the
// body is visible; headers pass through unchanged.
type Transformer interface {
	Transform(body any) (any, error)
}

// TransformerFunc adapts a bare function to the Transformer capability.
type TransformerFunc func(body any) (any, error)

// Transform calls f.
func (f TransformerFunc) Transform(body any) (any, error) { return f(body) }

// Filterer is the predicate capability invoked by a filter() step.
type Filterer interface {
	Filter(ex *Exchange) (bool, error)
}

// FilterFunc adapts a bare function to the Filterer capability.
type FilterFunc func(ex *Exchange) (bool, error)

// Filter calls f.
func (f FilterFunc) Filter(ex *Exchange) (bool, error) { return f(ex) }

// Tapper is the non-critical observer capability invoked by a tap() step.
type Tapper interface {
	Tap(ex *Exchange) error
}

// TapFunc adapts a bare function to the Tapper capability.
type TapFunc func(ex *Exchange) error

// Tap calls f.
func (f TapFunc) Tap(ex *Exchange) error { return f(ex) }

// Splitter is the fan-out capability invoked by a split() step. It
// returns the ordered list of child bodies; each becomes one child
// Exchange under a fresh split-hierarchy group.
type Splitter interface {
	Split(ex *Exchange) ([]any, error)
}

// SplitFunc adapts a bare function to the Splitter capability.
type SplitFunc func(ex *Exchange) ([]any, error)

// Split calls f.
func (f SplitFunc) Split(ex *Exchange) ([]any, error) { return f(ex) }

// Aggregator is the fan-in capability invoked by an aggregate() step. It
// receives the triggering exchange plus every sibling sharing its
// innermost split group, in FIFO arrival order, and returns the merged
// body for the single output exchange.
type Aggregator interface {
	Aggregate(exs []*Exchange) (any, error)
}

// AggregateFunc adapts a bare function to the Aggregator capability.
type AggregateFunc func(exs []*Exchange) (any, error)

// Aggregate calls f.
func (f AggregateFunc) Aggregate(exs []*Exchange) (any, error) { return f(exs) }

// workPusher is the per-exchange local FIFO work queue a step pushes its
// continuations onto. Implemented by route.go's localWorkQueue; kept as
// an interface here so steps only depend on the two operations they
// actually need.
type workPusher interface {
	push(ex *Exchange, rest []Step)
	collectPeers(groupID string) []*Exchange
}

// stepScope carries the ambient information a step needs to report
// failures without threading a Route pointer through every call.
type stepScope struct {
	routeID string
	events  *EventBus
}

func (s stepScope) reportError(err *Error) {
	if s.events != nil {
		s.events.fireError(err, s.routeID)
	}
}

// Step is the uniform pipeline operation contract: every kind exposes an
// Operation tag and an execute method that decides which (exchange,
// remaining-steps) continuations to push onto the local work queue. A
// step observably mutates nothing except that queue.
type Step interface {
	Operation() string
	execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope)
}

type processStep struct{ p Processor }

// Process returns a step wrapping p. Pushes p(ex) onto rest on success;
// a failing p is wrapped as CodeProcessError, logged, and reported on
// the event bus without aborting the route.
func Process(p Processor) Step { return processStep{p: p} }

// ProcessFunc is a convenience constructor accepting a bare function.
func ProcessFunc(fn func(ex *Exchange) (*Exchange, error)) Step {
	return Process(ProcessorFunc(fn))
}

func (processStep) Operation() string { return OperationProcess }

func (s processStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	out, err := s.p.Process(ex)
	if err != nil {
		wrapped := errStep(CodeProcessError, scope.routeID, err)
		logStepError(ex, wrapped)
		scope.reportError(wrapped)
		return
	}
	wq.push(out, rest)
}

type transformStep struct{ t Transformer }

// Transform returns a step wrapping t, which sees and replaces only the
// body.
func Transform(t Transformer) Step { return transformStep{t: t} }

// TransformFunc is a convenience constructor accepting a bare function.
func TransformFunc(fn func(body any) (any, error)) Step {
	return Transform(TransformerFunc(fn))
}

func (transformStep) Operation() string { return OperationTransform }

func (s transformStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	newBody, err := s.t.Transform(ex.Body)
	if err != nil {
		wrapped := errStep(CodeTransformError, scope.routeID, err)
		logStepError(ex, wrapped)
		scope.reportError(wrapped)
		return
	}
	wq.push(ex.withBody(newBody), rest)
}

type toStep struct{ d Destination }

// To returns a terminal-effect step. A route may contain multiple to()
// steps; each pushes the same exchange onto rest once send completes so
// later steps in the chain still run.
func To(d Destination) Step { return toStep{d: d} }

// ToFunc is a convenience constructor accepting a bare function.
func ToFunc(fn func(ex *Exchange) error) Step { return To(DestinationFunc(fn)) }

func (toStep) Operation() string { return OperationTo }

func (s toStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	if err := s.d.Send(ex); err != nil {
		wrapped := errStep(CodeToError, scope.routeID, err)
		logStepError(ex, wrapped)
		scope.reportError(wrapped)
		return
	}
	wq.push(ex, rest)
}

type tapStep struct{ t Tapper }

// Tap returns a non-critical observer step. The handler receives a
// defensive copy of the exchange; its mutations are never visible to
// later steps, and its failures are logged and suppressed rather than
// reported as route-affecting errors.
func Tap(t Tapper) Step { return tapStep{t: t} }

// TapStepFunc is a convenience constructor accepting a bare function.
func TapStepFunc(fn func(ex *Exchange) error) Step { return Tap(TapFunc(fn)) }

func (tapStep) Operation() string { return OperationTap }

func (s tapStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	if err := s.t.Tap(ex.clone()); err != nil && ex.Logger != nil {
		ex.Logger.Warn("tap handler failed, suppressed", "error", err)
	}
	wq.push(ex, rest)
}

type filterStep struct{ f Filterer }

// Filter returns a predicate step. When the predicate is false the
// exchange is dropped silently (nothing is pushed, no error reported);
// when the predicate itself fails, that is reported as CodeFilterError.
func Filter(f Filterer) Step { return filterStep{f: f} }

// FilterStepFunc is a convenience constructor accepting a bare function.
func FilterStepFunc(fn func(ex *Exchange) (bool, error)) Step { return Filter(FilterFunc(fn)) }

func (filterStep) Operation() string { return OperationFilter }

func (s filterStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	keep, err := s.f.Filter(ex)
	if err != nil {
		wrapped := errStep(CodeFilterError, scope.routeID, err)
		logStepError(ex, wrapped)
		scope.reportError(wrapped)
		return
	}
	if !keep {
		return
	}
	wq.push(ex, rest)
}

type splitStep struct{ s Splitter }

// Split returns a fan-out step. Each returned body becomes one child
// exchange with a fresh id and the parent's split hierarchy plus one
// fresh group identifier; children are pushed in the order returned. A
// zero-length result terminates the branch.
func Split(s Splitter) Step { return splitStep{s: s} }

// SplitStepFunc is a convenience constructor accepting a bare function.
func SplitStepFunc(fn func(ex *Exchange) ([]any, error)) Step { return Split(SplitFunc(fn)) }

func (splitStep) Operation() string { return OperationSplit }

func (s splitStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	children, err := s.s.Split(ex)
	if err != nil {
		wrapped := errStep(CodeSplitError, scope.routeID, err)
		logStepError(ex, wrapped)
		scope.reportError(wrapped)
		return
	}
	if len(children) == 0 {
		return
	}
	groupID := newID()
	for _, body := range children {
		wq.push(ex.splitChild(body, groupID), rest)
	}
}

type aggregateStep struct{ a Aggregator }

// Aggregate returns a fan-in step. If the triggering exchange has no
// split hierarchy it aggregates itself alone; otherwise it collects
// every queued sibling sharing its innermost split group, aggregates
// them together, and pops one level off the resulting hierarchy.
func Aggregate(a Aggregator) Step { return aggregateStep{a: a} }

// AggregateStepFunc is a convenience constructor accepting a bare function.
func AggregateStepFunc(fn func(exs []*Exchange) (any, error)) Step {
	return Aggregate(AggregateFunc(fn))
}

func (aggregateStep) Operation() string { return OperationAggregate }

func (s aggregateStep) execute(ex *Exchange, rest []Step, wq workPusher, scope stepScope) {
	groupID, ok := ex.innermostGroup()

	var members []*Exchange
	var poppedHeaders Headers
	if !ok {
		members = []*Exchange{ex}
		poppedHeaders = ex.Headers
	} else {
		peers := wq.collectPeers(groupID)
		members = append([]*Exchange{ex}, peers...)
		poppedHeaders = ex.Headers.withSplitHierarchy(ex.poppedHierarchy())
	}

	body, err := s.a.Aggregate(members)
	if err != nil {
		wrapped := errStep(CodeAggregateError, scope.routeID, err)
		logStepError(ex, wrapped)
		scope.reportError(wrapped)
		return
	}

	out := &Exchange{
		ID:      newID(),
		Headers: poppedHeaders,
		Body:    body,
		Logger:  ex.Logger,
	}
	wq.push(out, rest)
}

func logStepError(ex *Exchange, err *Error) {
	if ex.Logger != nil {
		ex.Logger.Error("step failed", "code", err.Code, "error", err.Cause)
	}
}
