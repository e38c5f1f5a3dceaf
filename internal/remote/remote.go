// Package remote defines the transport port the store drives per segment and
// its implementations. A remote is deliberately dumb: it can upload a byte
// buffer and hand back an opaque id, and it can resolve such an id back to
// bytes. Ordering, chunk bookkeeping, and encryption all live above it.
package remote

import (
	"context"
	"fmt"
)

// Remote is the upload/download capability the store depends on.
type Remote interface {
	// Upload stores data under the given display name and returns the
	// remote id assigned by the backend.
	Upload(ctx context.Context, data []byte, name string) (string, error)

	// Download resolves a remote id back to its byte content.
	Download(ctx context.Context, remoteID string) ([]byte, error)
}

// TransportError wraps a failed upload or download call, including calls
// that succeeded at the HTTP level but returned no usable identifier.
type TransportError struct {
	Op  string // "upload" or "download"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError for the given operation.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
