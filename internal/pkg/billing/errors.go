package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown mapping or discount ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed or missing fields.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInconsistentState is returned when an operation conflicts with the stored state.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrValidationFailed is returned when a proposed amount fails reconciliation.
	ErrValidationFailed = errors.New("validation failed")

	ErrInvalidTransition = fmt.Errorf("%w: invalid discount status transition", ErrInconsistentState)
	ErrConcurrentUpdate  = fmt.Errorf("%w: mapping was modified concurrently", ErrInconsistentState)
)

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func validationFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

func invalidTransition(from, to DiscountStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
