package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrSymbolNotFound       = errors.New("symbol not found")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrNotFound             = errors.New("not found")

	// ErrConflict means the store detected a concurrent modification. The
	// whole unit of work was rolled back and may be retried with fresh reads.
	ErrConflict = errors.New("store conflict")

	// ErrUnavailable means the store could not be reached or failed in a way
	// that a retry of the same request is not expected to fix.
	ErrUnavailable = errors.New("store unavailable")
)

// ValidationError rejects a malformed or out-of-range request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsBusiness reports whether err is a rejection the caller caused, as opposed
// to a store failure.
func IsBusiness(err error) bool {
	switch {
	case IsValidation(err),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientHoldings),
		errors.Is(err, ErrSymbolNotFound),
		errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}
