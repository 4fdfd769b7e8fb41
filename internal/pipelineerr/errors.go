package pipelineerr

import (
	"errors"
	"fmt"

	"github.com/driftless/driftless/internal/span"
)

// Kind classifies a pipeline error by which pipeline stage raised it.
// Every kind may carry a Span; several carry additional
// kind-specific fields (Path, NodeIndex, ExitStatus, StderrTail, Policies).
type Kind string

const (
	KindSourceRead           Kind = "source_read"
	KindParse                Kind = "parse"
	KindEvaluate             Kind = "evaluate"
	KindBadPlanShape         Kind = "bad_plan_shape"
	KindParamValidation      Kind = "param_validation"
	KindUnknownCoreModule    Kind = "unknown_core_module"
	KindUnknownResourceField Kind = "unknown_resource_field"
	KindCausalityError       Kind = "causality_error"
	KindProbe                Kind = "probe"
	KindOperation            Kind = "operation"
	KindCancelled            Kind = "cancelled"
	KindPolicyDenied         Kind = "policy_denied"
)

// Error is the pipeline's single structured error type. It is never
// collapsed to a bare string before reaching a caller; callers that need to
// branch on failure mode should use errors.As against *Error and switch on
// Kind.
type Error struct {
	Kind Kind
	Span *span.Span

	// Path is the dotted/indexed field path for ParamValidation errors.
	Path string
	// Expected/Observed describe the shape mismatch for ParamValidation.
	Expected string
	Observed string

	// NodeIndex is the FlatTree index a probe/operation error applies to.
	NodeIndex *int

	// ExitStatus and StderrTail are set for KindOperation.
	ExitStatus *int
	StderrTail string

	// Policies names the violating policies for KindPolicyDenied.
	Policies []string

	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Span != nil {
		return fmt.Sprintf("[%s] %s (%s)", e.Kind, msg, e.Span)
	}
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s (path=%s)", e.Kind, msg, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewSourceReadError(message string, err error) *Error { return newError(KindSourceRead, message, err) }
func NewParseError(message string, err error) *Error       { return newError(KindParse, message, err) }
func NewEvaluateError(message string, err error) *Error    { return newError(KindEvaluate, message, err) }
func NewBadPlanShapeError(message string) *Error           { return newError(KindBadPlanShape, message, nil) }
func NewUnknownCoreModuleError(module string) *Error {
	return newError(KindUnknownCoreModule, fmt.Sprintf("unknown core module %q", module), nil)
}
func NewUnknownResourceFieldError(field string) *Error {
	return newError(KindUnknownResourceField, fmt.Sprintf("unknown resource field %q", field), nil)
}
func NewProbeError(message string, err error) *Error { return newError(KindProbe, message, err) }
func NewCancelledError() *Error                      { return newError(KindCancelled, "apply cancelled", nil) }

// NewParamValidationError builds a ParamValidation error naming the failing
// field path, the expected shape, and the observed shape, per section 4.3's
// diagnostic requirement.
func NewParamValidationError(path, expected, observed string, sp *span.Span) *Error {
	return &Error{
		Kind:     KindParamValidation,
		Span:     sp,
		Path:     path,
		Expected: expected,
		Observed: observed,
		Message:  fmt.Sprintf("expected %s, observed %s", expected, observed),
	}
}

// NewCausalityError wraps a causality scheduling failure.
func NewCausalityError(message string, err error) *Error {
	return newError(KindCausalityError, message, err)
}

// NewOperationError carries the exit status and captured stderr tail.
func NewOperationError(message string, exitStatus int, stderrTail string, nodeIndex *int) *Error {
	return &Error{
		Kind:       KindOperation,
		Message:    message,
		ExitStatus: &exitStatus,
		StderrTail: stderrTail,
		NodeIndex:  nodeIndex,
	}
}

// NewPolicyDeniedError carries the names of the policies that rejected the
// planned changes.
func NewPolicyDeniedError(policies []string) *Error {
	return &Error{
		Kind:     KindPolicyDenied,
		Policies: policies,
		Message:  fmt.Sprintf("denied by policies: %v", policies),
	}
}

// WithSpan attaches a span to an error and returns it for chaining.
func (e *Error) WithSpan(sp span.Span) *Error {
	e.Span = &sp
	return e
}

// WithNodeIndex attaches a FlatTree node index and returns it for chaining.
func (e *Error) WithNodeIndex(i int) *Error {
	e.NodeIndex = &i
	return e
}

// Is helpers for the standard errors.Is machinery.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
