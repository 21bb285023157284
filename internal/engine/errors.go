package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tably/tably/internal/expr"
)

// DispatchError reports that no registered handler matches a node's
// runtime inputs. It names the node kind and the observed classes so
// the failure is diagnosable without a debugger.
type DispatchError struct {
	Kind    expr.Kind
	Classes []Class

	// EvalID correlates the error with the evaluation's log lines.
	EvalID string
}

func (e *DispatchError) Error() string {
	classes := make([]string, len(e.Classes))
	for i, c := range e.Classes {
		classes[i] = string(c)
	}
	msg := fmt.Sprintf("no handler for %s over (%s)", e.Kind, strings.Join(classes, ", "))
	if e.EvalID != "" {
		msg += fmt.Sprintf(" (eval=%s)", e.EvalID)
	}
	return msg
}

// IsDispatchError reports whether err is (or wraps) a DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

// AmbiguousDispatchError reports two registrations for the same kind
// whose patterns overlap at equal specificity. Raised at registration
// time: ties are never broken by registration order.
type AmbiguousDispatchError struct {
	Kind     expr.Kind
	Existing Pattern
	Proposed Pattern
}

func (e *AmbiguousDispatchError) Error() string {
	return fmt.Sprintf("ambiguous dispatch for %s: pattern %s ties existing %s",
		e.Kind, e.Proposed, e.Existing)
}

// IsAmbiguousDispatchError reports whether err is (or wraps) an
// AmbiguousDispatchError.
func IsAmbiguousDispatchError(err error) bool {
	var ae *AmbiguousDispatchError
	return errors.As(err, &ae)
}

// UnsupportedOperationError reports an expression a backend matched but
// cannot evaluate: multi-dimensional reductions, slice forms beyond
// index and simple range, SQL pushdown of nodes outside the compiled
// fragment.
type UnsupportedOperationError struct {
	Kind    expr.Kind
	Message string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation on %s: %s", e.Kind, e.Message)
}

// IsUnsupportedOperationError reports whether err is (or wraps) an
// UnsupportedOperationError.
func IsUnsupportedOperationError(err error) bool {
	var ue *UnsupportedOperationError
	return errors.As(err, &ue)
}

// Unsupportedf builds an UnsupportedOperationError.
func Unsupportedf(kind expr.Kind, format string, args ...any) *UnsupportedOperationError {
	return &UnsupportedOperationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
