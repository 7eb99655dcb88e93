package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist, or is
	// excluded from the queried view (an inactive tool, for instance).
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint was violated, such
	// as a second tool row with the same name.
	ErrAlreadyExists = errors.New("already exists")
)
