package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNonceTooLow means the nonce was already used by a mined transaction.
	ErrNonceTooLow = errors.New("nonce too low")
	// ErrReplacementUnderpriced means a same-nonce replacement did not raise
	// the fee enough.
	ErrReplacementUnderpriced = errors.New("replacement transaction underpriced")
	// ErrAlreadyKnown means the exact transaction is already in the mempool.
	ErrAlreadyKnown = errors.New("already known")
)

// TransportError wraps a failure to reach the ledger. The call may or may
// not have taken effect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CallError is a static call the ledger evaluated and rejected.
type CallError struct {
	Reason string
}

func (e *CallError) Error() string {
	return "call reverted: " + e.Reason
}

var transientPatterns = []string{
	"connection reset by peer",
	"connection refused",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"eof",
	"no such host",
	"too many requests",
	"503 service unavailable",
	"502 bad gateway",
}

// IsTransient reports whether err is a transport failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
