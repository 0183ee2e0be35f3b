package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRecipient indicates a send to a name with no registered handle.
	ErrUnknownRecipient = errors.New("contracts: unknown recipient")

	// ErrUnknownMessageID indicates an acknowledgment for an id that is not in-flight.
	ErrUnknownMessageID = errors.New("contracts: unknown message id")
)

// ValidationError describes a malformed envelope record: a missing required
// field, a bad type tag, or a field of the wrong shape. It is always surfaced
// to the caller attempting to construct or parse, never silently coerced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid envelope: field %q %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
