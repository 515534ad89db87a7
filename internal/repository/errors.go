package repository

import "errors"

var (
	// ErrNotClaimable is returned when a queue row is not in a state that allows the transition.
	ErrNotClaimable = errors.New("message is not claimable")
	// ErrNotFound is returned when the row does not exist.
	ErrNotFound = errors.New("record not found")
)
