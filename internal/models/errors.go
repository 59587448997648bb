package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// ErrAllBackendsUnavailable is returned by search only when every capability
// (embedding, vector, keyword, and their fallbacks) failed to produce output.
var ErrAllBackendsUnavailable = errors.New("all search backends unavailable")

// ValidationError rejects bad input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ProviderUnavailableError indicates an embedding or search backend is down.
// A single backend failure is recovered via the fallback chain; this error is
// only surfaced when the whole chain is exhausted. Timeouts are reported as
// provider unavailability for the call that timed out.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError indicates a provider returned a vector whose length
// does not match its declared dimension, or a vector with non-finite
// components. Fatal for that embedding; not retried with the same input.
type DimensionMismatchError struct {
	Model string
	Want  int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch for model %s: want %d, got %d", e.Model, e.Want, e.Got)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
