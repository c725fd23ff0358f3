package store

import "errors"

// Sentinel errors returned by Tx implementations. Services translate these
// into domain errors at the workflow boundary.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the entity failed storage-level validation.
	ErrInvalidInput = errors.New("invalid input")
)
