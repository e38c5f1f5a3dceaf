package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates no tracker record exists for the path and the path
// does not look like a raw remote id.
var ErrNotFound = errors.New("file not found")

// WriteError wraps any failure of a Write, Copy, or Move as a single failure
// for the whole path. Already-uploaded segments of the failed attempt are not
// cleaned up.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed for %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps any failure of a Read; no partial content is ever returned.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed for %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
