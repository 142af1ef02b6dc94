// Package internalerr defines the error kinds shared across keywordhub.
// Concrete errors wrap one of these with fmt.Errorf("...: %w", kind) so that
// callers can classify them with errors.Is.
package internalerr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failure")
	ErrDelivery    = errors.New("action delivery failed")
)
