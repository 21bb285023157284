package expr

import (
	"errors"
	"fmt"
)

// ConstructionError represents an algebra combinator invoked with
// invalid parameters: an unknown join-kind string, non-distinct merge
// columns, an empty common-subexpression search, and similar misuse.
//
// Construction errors surface immediately, before any data is touched.
type ConstructionError struct {
	// Code identifies the error category.
	Code ConstructionErrorCode

	// Message is a human-readable description.
	Message string
}

// ConstructionErrorCode categorizes construction errors.
type ConstructionErrorCode string

const (
	// ErrCodeUnknownJoinKind indicates a join 'how' outside
	// inner/left/right/outer.
	ErrCodeUnknownJoinKind ConstructionErrorCode = "UNKNOWN_JOIN_KIND"

	// ErrCodeDuplicateColumns indicates repeated column names in a
	// merge or grouping result.
	ErrCodeDuplicateColumns ConstructionErrorCode = "DUPLICATE_COLUMNS"

	// ErrCodeNoCommonSubexpression indicates that no shared ancestor
	// exists for expressions that must be co-indexed.
	ErrCodeNoCommonSubexpression ConstructionErrorCode = "NO_COMMON_SUBEXPRESSION"

	// ErrCodeNotElemwise indicates an expression that must be reachable
	// from its ancestor via element-wise steps only, but is not.
	ErrCodeNotElemwise ConstructionErrorCode = "NOT_ELEMWISE"

	// ErrCodeUnnamed indicates an expression with no inferable value
	// name where one is required.
	ErrCodeUnnamed ConstructionErrorCode = "UNNAMED_EXPRESSION"

	// ErrCodeInvalidArgument covers remaining parameter misuse.
	ErrCodeInvalidArgument ConstructionErrorCode = "INVALID_ARGUMENT"
)

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConstructionError reports whether err is (or wraps) a
// ConstructionError.
func IsConstructionError(err error) bool {
	var ce *ConstructionError
	return errors.As(err, &ce)
}

// Errorf builds a ConstructionError with a formatted message.
func Errorf(code ConstructionErrorCode, format string, args ...any) *ConstructionError {
	return &ConstructionError{Code: code, Message: fmt.Sprintf(format, args...)}
}
