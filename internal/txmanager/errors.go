package txmanager

import (
	"errors"
	"fmt"
)

// RevertError is a transaction that was mined and reverted. It is terminal
// for the owning future and never retried.
type RevertError struct {
	FutureID string
	Index    int
	Hash     string
	Reason   string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("transaction %s of %s (request %d) reverted: %s", e.Hash, e.FutureID, e.Index, e.Reason)
}

// UnknownOutcomeError is a request whose nonce was consumed on the ledger by
// a transaction this deployment cannot account for. Resending could execute
// the request twice, so the future fails instead.
type UnknownOutcomeError struct {
	FutureID string
	Index    int
	Nonce    uint64
	Reason   string
}

func (e *UnknownOutcomeError) Error() string {
	return fmt.Sprintf("request %d of %s (nonce %d) has an unknown outcome: %s", e.Index, e.FutureID, e.Nonce, e.Reason)
}

// ExhaustedError is a request given up after its retries, fee bumps or
// resends ran out.
type ExhaustedError struct {
	FutureID string
	Index    int
	Op       string
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("request %d of %s: %s exhausted: %v", e.Index, e.FutureID, e.Op, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// RejectedError is a transaction the ledger refused for a reason retrying
// cannot fix, such as insufficient funds.
type RejectedError struct {
	FutureID string
	Index    int
	Err      error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("request %d of %s rejected: %v", e.Index, e.FutureID, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// IsRevert reports whether err is or wraps a *RevertError.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// IsUnknownOutcome reports whether err is or wraps an *UnknownOutcomeError.
func IsUnknownOutcome(err error) bool {
	var ue *UnknownOutcomeError
	return errors.As(err, &ue)
}

// IsExhausted reports whether err is or wraps an *ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
