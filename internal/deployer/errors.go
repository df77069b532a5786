package deployer

import (
	"errors"
	"fmt"
	"strings"
)

// OperatorError reports a deployment the operator asked for that cannot
// start: an unusable sender or a journal that belongs elsewhere. Nothing is
// recorded when it is returned.
type OperatorError struct {
	// Code identifies the error category.
	Code OperatorErrorCode

	// Message is a human-readable description.
	Message string

	// FutureID identifies the offending future, when there is one.
	FutureID string
}

// OperatorErrorCode categorizes operator errors.
type OperatorErrorCode string

const (
	// ErrCodeUnknownSender indicates a sender that is not an available account.
	ErrCodeUnknownSender OperatorErrorCode = "UNKNOWN_SENDER"

	// ErrCodeChainMismatch indicates a journal recorded against another chain.
	ErrCodeChainMismatch OperatorErrorCode = "CHAIN_MISMATCH"

	// ErrCodeModuleMismatch indicates a journal recorded for another module.
	ErrCodeModuleMismatch OperatorErrorCode = "MODULE_MISMATCH"

	// ErrCodeEngineVersion indicates a journal this engine cannot resume.
	ErrCodeEngineVersion OperatorErrorCode = "ENGINE_VERSION"
)

// Error implements the error interface.
func (e *OperatorError) Error() string {
	if e.FutureID != "" {
		return fmt.Sprintf("%s: %s (future=%s)", e.Code, e.Message, e.FutureID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsOperatorError reports whether err is or wraps an OperatorError.
func IsOperatorError(err error) bool {
	var oe *OperatorError
	return errors.As(err, &oe)
}

func operatorf(code OperatorErrorCode, futureID, format string, args ...any) *OperatorError {
	return &OperatorError{Code: code, FutureID: futureID, Message: fmt.Sprintf(format, args...)}
}

// Mismatch is one disagreement between the journal and the module.
type Mismatch struct {
	FutureID string
	Message  string
}

func (m Mismatch) String() string { return m.FutureID + ": " + m.Message }

// ReconciliationError reports a journal whose recorded futures no longer
// match the module being deployed. Such a deployment must be wiped or
// reverted to the original module before it can continue.
type ReconciliationError struct {
	Mismatches []Mismatch
}

// Error implements the error interface.
func (e *ReconciliationError) Error() string {
	msgs := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		msgs[i] = m.String()
	}
	return "journal does not match module: " + strings.Join(msgs, "; ")
}

// IsReconciliationError reports whether err is or wraps a
// ReconciliationError.
func IsReconciliationError(err error) bool {
	var re *ReconciliationError
	return errors.As(err, &re)
}

// recordError marks a failure to append to the journal. It aborts the run:
// the scheduler cannot act on a transition it could not persist.
type recordError struct {
	err error
}

func (e *recordError) Error() string { return "record journal message: " + e.err.Error() }

func (e *recordError) Unwrap() error { return e.err }
