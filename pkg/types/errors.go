package types

import "errors"

// Claim update errors
var (
	// ErrImmutableField is returned when an update tries to change claim_id or submission_time
	ErrImmutableField = errors.New("immutable field")

	// ErrInvalidField is returned when an update value does not fit the claim's field type
	ErrInvalidField = errors.New("invalid field value")
)
