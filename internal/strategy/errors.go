package strategy

import (
	"errors"
	"fmt"
)

// ResolutionError is a future whose requests or result could not be derived:
// an unresolved reference, an argument that does not fit the ABI, or a
// result missing from the receipts. It fails that future only.
type ResolutionError struct {
	FutureID string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.FutureID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IsResolutionError reports whether err is or wraps a *ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

func resolutionf(futureID, format string, args ...any) *ResolutionError {
	return &ResolutionError{FutureID: futureID, Err: fmt.Errorf(format, args...)}
}
