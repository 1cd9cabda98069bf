package store

import "errors"

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned when a conditional update lost against a concurrent writer
	// or the target record is no longer live.
	ErrConflict = errors.New("store: conflicting update")
	// ErrDuplicate is returned when an identifier is already bound to another user.
	ErrDuplicate = errors.New("store: duplicate identifier")
)
