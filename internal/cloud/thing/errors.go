package thing

import "errors"

var (
	// ErrUnknownField is returned for field names outside the accessor table.
	ErrUnknownField = errors.New("thing: unknown field")

	// ErrReadOnlyField is returned when a read-only field is commanded.
	ErrReadOnlyField = errors.New("thing: field is read-only")

	// ErrInvalidValue is returned when a command value has the wrong type
	// or is out of range.
	ErrInvalidValue = errors.New("thing: invalid field value")
)
