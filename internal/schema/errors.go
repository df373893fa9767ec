package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a record has invalid field values.
	ErrValidation = errors.New("validation failed")

	// ErrImportRejected is returned when a snapshot cannot replace local state,
	// for example because a collection is missing.
	ErrImportRejected = errors.New("import rejected")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrImportRejected, fmt.Sprintf(format, args...))
}
