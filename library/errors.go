package library

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a book or copy identifier does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrOverLimit means the user already holds their maximum number of copies.
	ErrOverLimit = errors.New("over limit")

	// ErrUnavailable means the book has no shelved copy anywhere.
	ErrUnavailable = errors.New("not available")

	// ErrInvalidState means the copy is in the wrong state for the operation.
	ErrInvalidState = errors.New("invalid state")

	// ErrCapacityExhausted means no rack has room for another copy.
	ErrCapacityExhausted = errors.New("no rack available")

	// ErrValidation means a configuration value was rejected.
	ErrValidation = errors.New("validation failed")

	// ErrInternal means rack state and copy records disagree.
	ErrInternal = errors.New("internal inconsistency")
)

var (
	// ErrNotBorrowed is returned when a copy that is not lent out is returned.
	ErrNotBorrowed = fmt.Errorf("%w: copy not borrowed", ErrInvalidState)

	// ErrNotCreated is returned by rack operations before Create.
	ErrNotCreated = fmt.Errorf("%w: library has not been created", ErrInvalidState)

	// ErrLimitBelowHeld rejects a limit lower than the copies a user already holds.
	ErrLimitBelowHeld = fmt.Errorf("%w: limit below copies held", ErrValidation)
)
