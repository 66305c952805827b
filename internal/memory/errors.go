package memory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions callers branch on.
var (
	// ErrNotFound marks an unknown memory, tenant, or policy.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a status-transition compare-and-swap that found
	// the row in a different state than expected.
	ErrConflict = errors.New("status transition conflict")

	// ErrRetentionBusy signals that a retention run is already in flight
	// for the tenant. Callers should retry later.
	ErrRetentionBusy = errors.New("retention run already in flight for tenant")
)

// ValidationError reports bad input shape or range. It is returned
// synchronously and nothing is partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validatef builds a ValidationError with a formatted reason.
func Validatef(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
