package store

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupted matches every *CorruptionError.
	ErrCorrupted = errors.New("store: collection corrupted")

	// ErrVersionConflict is returned when a write is based on a stale snapshot.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("store: closed")
)

// CorruptionError reports a stored collection that could not be decoded.
type CorruptionError struct {
	Key string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("store: collection %q corrupted: %v", e.Key, e.Err)
}

// Unwrap exposes both ErrCorrupted and the underlying decode error.
func (e *CorruptionError) Unwrap() []error {
	return []error{ErrCorrupted, e.Err}
}
