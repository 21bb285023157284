package shape

import (
	"errors"
	"fmt"
)

// Error represents a schema inference failure.
//
// Shape errors surface at expression construction time, before any data
// is touched. The whole point of the schema layer is to catch mistakes
// before expensive computation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes shape errors.
type ErrorCode string

const (
	// ErrCodeFieldCollision indicates duplicate field names in a record.
	ErrCodeFieldCollision ErrorCode = "FIELD_COLLISION"

	// ErrCodeIncompatibleKeys indicates join key types that do not match.
	ErrCodeIncompatibleKeys ErrorCode = "INCOMPATIBLE_KEYS"

	// ErrCodeNotOneDimensional indicates a reduction over a child that is
	// not a one-dimensional collection.
	ErrCodeNotOneDimensional ErrorCode = "NOT_ONE_DIMENSIONAL"

	// ErrCodeUnknownField indicates a reference to a field the record
	// does not carry.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeInvalidShape indicates a malformed shape (nil type, wrong
	// composition for the operation).
	ErrCodeInvalidShape ErrorCode = "INVALID_SHAPE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsShapeError reports whether err is (or wraps) a shape.Error.
func IsShapeError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
