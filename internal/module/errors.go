package module

import (
	"errors"
	"fmt"
	"strings"
)

// StructuralError reports a module that cannot be executed as declared.
// Structural errors are raised at construction, before anything runs.
type StructuralError struct {
	// Code identifies the error category.
	Code StructuralErrorCode

	// Message is a human-readable description.
	Message string

	// FutureID identifies the offending future, when there is one.
	FutureID string

	// Path is the cycle path for ErrCodeCycle, e.g. [A, B, A].
	Path []string
}

// StructuralErrorCode categorizes structural errors.
type StructuralErrorCode string

const (
	ErrCodeInvalidModule     StructuralErrorCode = "INVALID_MODULE"
	ErrCodeDuplicateFuture   StructuralErrorCode = "DUPLICATE_FUTURE"
	ErrCodeInvalidFuture     StructuralErrorCode = "INVALID_FUTURE"
	ErrCodeDanglingReference StructuralErrorCode = "DANGLING_REFERENCE"
	ErrCodeInvalidReference  StructuralErrorCode = "INVALID_REFERENCE"
	ErrCodeCycle             StructuralErrorCode = "CYCLE"
	ErrCodeUnknownResult     StructuralErrorCode = "UNKNOWN_RESULT"
)

// Error implements the error interface.
func (e *StructuralError) Error() string {
	switch {
	case len(e.Path) > 0:
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Path, " -> "))
	case e.FutureID != "":
		return fmt.Sprintf("%s: %s (future=%s)", e.Code, e.Message, e.FutureID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsStructuralError reports whether err is or wraps a StructuralError.
func IsStructuralError(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsCycleError reports whether err is a StructuralError for a cycle.
func IsCycleError(err error) bool {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code == ErrCodeCycle
	}
	return false
}

func structuralf(code StructuralErrorCode, futureID, format string, args ...any) *StructuralError {
	return &StructuralError{Code: code, FutureID: futureID, Message: fmt.Sprintf(format, args...)}
}
