package routecraft

import "github.com/google/uuid"

// Reserved header keys. All other header keys are opaque to the core.
const (
	HeaderOperation      = "routecraft.operation"
	HeaderRoute          = "routecraft.route"
	HeaderCorrelationID  = "routecraft.correlation_id"
	HeaderAdapter        = "routecraft.adapter"
	HeaderSplitHierarchy = "routecraft.split_hierarchy"
)

// Operation tags written to HeaderOperation by the pipeline driver before
// invoking each step.
const (
	OperationFrom      = "FROM"
	OperationProcess   = "PROCESS"
	OperationTo        = "TO"
	OperationSplit     = "SPLIT"
	OperationAggregate = "AGGREGATE"
	OperationTransform = "TRANSFORM"
	OperationTap       = "TAP"
	OperationFilter    = "FILTER"
)

// Headers is the scalar header map carried by an Exchange. Values are
// expected to be string, a numeric type, bool, or nil; the core never
// interprets them beyond the reserved keys above.
type Headers map[string]any

// Clone returns a shallow copy so mutation of the copy never aliases the
// original exchange's headers.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// splitHierarchy returns the ordered group-id stack stored under
// HeaderSplitHierarchy, or nil if the exchange has never been split.
func (h Headers) splitHierarchy() []string {
	v, ok := h[HeaderSplitHierarchy]
	if !ok {
		return nil
	}
	ids, _ := v.([]string)
	return ids
}

// withSplitHierarchy returns a copy of h with the split hierarchy replaced.
func (h Headers) withSplitHierarchy(ids []string) Headers {
	out := h.Clone()
	out[HeaderSplitHierarchy] = ids
	return out
}

// Exchange is the message envelope that flows through one invocation of
// a route's pipeline. It is immutable by convention: every step produces
// a new Exchange rather than mutating the one it received.
type Exchange struct {
	ID      string
	Headers Headers
	Body    any
	Logger  Logger
}

// ExchangeOptions supplies the optional fields for NewExchange; any zero
// field is filled with a fresh value.
type ExchangeOptions struct {
	ID      string
	Headers Headers
	Body    any
}

// NewExchange constructs an Exchange scoped to the given context and
// route. Any field left unset in opts is filled with a fresh identifier
// or an empty value. Caller-supplied headers override the constructor's
// own defaults for the same key. The route header defaults to routeID
// here; the operation header is applied later by the route and
// pipeline driver, not here.
func NewExchange(ctx *Context, routeID string, opts ExchangeOptions) *Exchange {
	id := opts.ID
	if id == "" {
		id = newID()
	}

	headers := make(Headers, len(opts.Headers)+2)
	headers[HeaderRoute] = routeID
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if _, ok := headers[HeaderCorrelationID]; !ok {
		headers[HeaderCorrelationID] = newID()
	}

	logger := ctx.logger
	if logger != nil {
		logger = logger.With(
			"context", ctx.ID,
			"route", routeID,
			"exchange", id,
			"correlation_id", headers[HeaderCorrelationID],
		)
	}

	return &Exchange{
		ID:      id,
		Headers: headers,
		Body:    opts.Body,
		Logger:  logger,
	}
}

// CorrelationID returns the exchange's correlation id, or "" if unset.
func (e *Exchange) CorrelationID() string {
	v, _ := e.Headers[HeaderCorrelationID].(string)
	return v
}

// RouteID returns the exchange's owning route id, or "" if unset.
func (e *Exchange) RouteID() string {
	v, _ := e.Headers[HeaderRoute].(string)
	return v
}

// withOperation returns a copy of e with HeaderOperation set to op. Used
// by the pipeline driver before invoking each step so a tap/log sink can
// observe which operation produced the exchange it received.
func (e *Exchange) withOperation(op string) *Exchange {
	h := e.Headers.Clone()
	h[HeaderOperation] = op
	return &Exchange{ID: e.ID, Headers: h, Body: e.Body, Logger: e.Logger}
}

// withBody returns a copy of e with a new body and the same id, headers
// and logger — the shape produced by transform/process.
func (e *Exchange) withBody(body any) *Exchange {
	return &Exchange{ID: e.ID, Headers: e.Headers, Body: body, Logger: e.Logger}
}

// clone returns a deep-enough copy for tap isolation: a distinct Headers
// map and a distinct Exchange value, so a tap handler's mutations of the
// copy are never observed by later steps. Body is not deep-copied; the
// core documents tap handlers as receiving a defensive copy of the
// envelope, not of arbitrarily nested body values it cannot introspect.
func (e *Exchange) clone() *Exchange {
	return &Exchange{
		ID:      e.ID,
		Headers: e.Headers.Clone(),
		Body:    e.Body,
		Logger:  e.Logger,
	}
}

// splitChild produces a fresh-id child exchange carrying groupID appended
// to the parent's split hierarchy, per the split step contract.
func (e *Exchange) splitChild(body any, groupID string) *Exchange {
	hierarchy := append(append([]string{}, e.Headers.splitHierarchy()...), groupID)
	h := e.Headers.withSplitHierarchy(hierarchy)
	return &Exchange{
		ID:      newID(),
		Headers: h,
		Body:    body,
		Logger:  e.Logger,
	}
}

// innermostGroup returns the last element of the split hierarchy and
// whether one exists.
func (e *Exchange) innermostGroup() (string, bool) {
	ids := e.Headers.splitHierarchy()
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}

// poppedHierarchy returns the exchange's split hierarchy with its
// innermost element removed, used by aggregate to shorten the stack by
// exactly one level.
func (e *Exchange) poppedHierarchy() []string {
	ids := e.Headers.splitHierarchy()
	if len(ids) == 0 {
		return nil
	}
	return append([]string{}, ids[:len(ids)-1]...)
}

func newID() string {
	return uuid.NewString()
}
