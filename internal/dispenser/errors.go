package dispenser

import "errors"

var (
	// ErrNoDenominations is returned when the denomination list is empty.
	ErrNoDenominations = errors.New("denominations must not be empty")
	// ErrInvalidDenominations is returned when a denomination is not a positive integer.
	ErrInvalidDenominations = errors.New("denominations must be positive integers")
	// ErrNotDescending is returned when the denominations are not strictly descending.
	ErrNotDescending = errors.New("denominations must be sorted in strictly descending order")
	// ErrMissingUnitDenomination is returned when the list does not end in 1.
	ErrMissingUnitDenomination = errors.New("denominations must end with the unit denomination 1")
	// ErrInvalidRequest is returned for negative requests.
	ErrInvalidRequest = errors.New("request must be a non-negative integer")
	// ErrRequestTooLarge is returned when a request exceeds MaxRequest.
	ErrRequestTooLarge = errors.New("request exceeds the supported maximum")
	// ErrSelfCheckFailed is returned by SelfCheck when the reference request is answered incorrectly.
	ErrSelfCheckFailed = errors.New("dispenser self-check failed")
)
