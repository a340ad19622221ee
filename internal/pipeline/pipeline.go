// Package pipeline runs the two data flows that fill the merge sheet: audio
// recording to extracted fields, and HR-system record import.
package pipeline

import "errors"

// ValidationError marks a failure caused by the request itself, such as a
// malformed storage URI or a sheet without labels. It is never retried.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
