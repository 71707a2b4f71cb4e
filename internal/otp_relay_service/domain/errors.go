package domain

import "errors"

var (
	// ErrNotFound indicates that a requested allocation was not found.
	ErrNotFound = errors.New("allocation not found")
	// ErrAllocationTerminal indicates a transition was attempted on an allocation that already succeeded or expired.
	ErrAllocationTerminal = errors.New("allocation already in a terminal state")
	// ErrNoUsableNumber indicates the provider returned a number without any digits.
	ErrNoUsableNumber = errors.New("provider returned no usable number")
	// ErrAllocationRejected indicates the provider refused to allocate a number for the range.
	ErrAllocationRejected = errors.New("provider rejected the allocation")
	// ErrInvalidRange indicates a range pattern without any digits.
	ErrInvalidRange = errors.New("invalid range pattern")
)
