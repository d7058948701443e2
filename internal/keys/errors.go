package keys

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when an operation needs a signed-in user.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNotFound is returned when a key is absent or not owned by the caller.
	ErrNotFound = errors.New("api key not found")
	// ErrValidation is returned for malformed user input.
	ErrValidation = errors.New("validation failed")
)

// StoreError reports a failed call to the underlying persistent store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
