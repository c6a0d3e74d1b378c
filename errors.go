package routecraft

import "fmt"

// Error codes are stable identifiers; callers may match on Code without
// depending on message wording.
const (
	CodeMissingFrom             = "missing-from"
	CodeRouteCannotStart        = "route-cannot-start"
	CodeDuplicateRouteID        = "duplicate-route-id"
	CodeInvalidOperation        = "invalid-operation"
	CodeUnknownError            = "unknown-error"
	CodeProcessError            = "process-error"
	CodeToError                 = "to-error"
	CodeSplitError              = "split-error"
	CodeAggregateError          = "aggregate-error"
	CodeTransformError          = "transform-error"
	CodeTapError                = "tap-error"
	CodeFilterError             = "filter-error"
	CodeDirectDuplicateEndpoint = "direct-duplicate-endpoint"
	CodeDirectNoConsumer        = "direct-no-consumer"
	CodeDirectSchemaValidation  = "direct-schema-validation" // RC5011
)

// RC5011 is the numeric alias for CodeDirectSchemaValidation that external
// tooling (dashboards, alert rules) matches on.
const RC5011 = "RC5011"

// Error is the core's single error type: a stable code, a human message,
// an optional remediation suggestion, and an optional wrapped cause.
// It prints with its full cause chain so diagnostics never lose context,
// while Code stays stable for programmatic handling via errors.Is/As.
type Error struct {
	Code       string
	NumericID  string
	Message    string
	Suggestion string
	RouteID    string
	Cause      error
}

// newError builds a routecraft Error, wrapping cause if non-nil.
func newError(code, routeID, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		RouteID: routeID,
		Cause:   cause,
	}
}

// WithSuggestion attaches a remediation hint and returns the receiver for
// chaining at the construction site.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Error implements the error interface, printing the full cause chain.
func (e *Error) Error() string {
	msg := fmt.Sprintf("routecraft: %s: %s", e.Code, e.Message)
	if e.RouteID != "" {
		msg = fmt.Sprintf("%s (route %s)", msg, e.RouteID)
	}
	if e.NumericID != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.NumericID)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a routecraft Error with the same Code,
// so callers can do errors.Is(err, &routecraft.Error{Code: routecraft.CodeToError}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return false
	}
	return e.Code == t.Code
}

func errMissingFrom() *Error {
	return newError(CodeMissingFrom, "", "a step method was called before the first from()", nil)
}

func errRouteCannotStart(routeID string) *Error {
	return newError(CodeRouteCannotStart, routeID, "route's cancellation token is already aborted", nil)
}

func errDuplicateRouteID(routeID string) *Error {
	return newError(CodeDuplicateRouteID, routeID, "a route with this id is already registered", nil)
}

func errStep(code, routeID string, cause error) *Error {
	return newError(code, routeID, "step execution failed", cause)
}

func errDirectDuplicateEndpoint(endpoint string) *Error {
	return newError(CodeDirectDuplicateEndpoint, "", fmt.Sprintf("endpoint %q already has a consumer", endpoint), nil)
}

func errDirectNoConsumer(endpoint string) *Error {
	return newError(CodeDirectNoConsumer, "", fmt.Sprintf("endpoint %q has no consumer", endpoint), nil)
}

func errDirectSchemaValidation(endpoint string, cause error) *Error {
	e := newError(CodeDirectSchemaValidation, "", fmt.Sprintf("body failed schema validation for endpoint %q", endpoint), cause)
	e.NumericID = RC5011
	return e
}
