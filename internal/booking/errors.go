package booking

import "errors"

// ErrSessionNotFound is returned when no session matches the id and kind.
var ErrSessionNotFound = errors.New("booking: session not found")

// ValidationError marks a malformed request: rejected immediately, never
// retried. Clients get a 400 with the reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "booking: invalid request: " + e.Reason
}

// ConflictError marks a definitive reservation failure: the slot is taken.
// The caller must re-query availability and let the user pick again; the
// platform never retries or substitutes a slot on its own.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "booking: conflict: " + e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
