// Package errs holds error types shared across domain services so transport
// handlers can map them to status codes without importing every service.
package errs

import "fmt"

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
