package errors

import (
	"errors"
)

// Common error types for the auth client
var (
	// Construction errors
	ErrConfigRequired  = errors.New("config is required")
	ErrStorageRequired = errors.New("storage is required")
	ErrKeyRequired     = errors.New("storage key is required")

	// Storage errors
	ErrCorrupt = errors.New("stored value is corrupt")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
