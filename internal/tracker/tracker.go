// Package tracker persists the metadata needed to reassemble files stored as
// one or more remote segments. Backends are swappable behind the Tracker
// interface and selected once at construction via the Driver enum; callers
// never dispatch on backend names at call sites.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/viktor/chat-storage-gateway/internal/config"
)

// FileRecord is the persisted unit of tracking, keyed by Path.
//
// RemoteIDs is never empty for a tracked record and its order is the exact
// order segments must be concatenated after decryption to reproduce the
// original byte stream. There is no integrity hash: reordering corrupts
// output undetectably.
type FileRecord struct {
	Path         string    `json:"path"`
	RemoteIDs    []string  `json:"remote_ids"`
	IsChunked    bool      `json:"is_chunked"`
	IsEncrypted  bool      `json:"is_encrypted"`
	OriginalSize int64     `json:"original_size"`
	MimeType     string    `json:"mime_type,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	Caption      string    `json:"caption,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy so stored records never alias caller slices.
func (r *FileRecord) Clone() *FileRecord {
	clone := *r
	clone.RemoteIDs = append([]string(nil), r.RemoteIDs...)
	return &clone
}

// Tracker is the persistence capability over file records.
type Tracker interface {
	// Track persists record, fully overwriting any existing record at the
	// same path. Whether CreatedAt survives an overwrite is backend
	// specific.
	Track(ctx context.Context, record *FileRecord) error

	// Exists reports whether a record is tracked at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Get returns the record at path, or nil when none is tracked.
	Get(ctx context.Context, path string) (*FileRecord, error)

	// Forget removes the record at path. Removing an untracked path is
	// not an error. The remote payload is never touched.
	Forget(ctx context.Context, path string) error

	// List returns every record whose path starts with prefix; the empty
	// prefix returns all records. Order is unspecified.
	List(ctx context.Context, prefix string) ([]*FileRecord, error)

	// Clear removes all records.
	Clear(ctx context.Context) error
}

// TrackingError wraps a backend read/write failure.
type TrackingError struct {
	Op   string
	Path string
	Err  error
}

func (e *TrackingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("tracking %s failed for %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("tracking %s failed: %v", e.Op, e.Err)
}

func (e *TrackingError) Unwrap() error { return e.Err }

// Driver names a tracker backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverJSON     Driver = "json"
	DriverPostgres Driver = "postgres"
	DriverNone     Driver = "none"
)

// New constructs the tracker selected by config. Disabled tracking and the
// "none" driver both yield the noop tracker.
func New(ctx context.Context, cfg *config.TrackingConfig) (Tracker, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}
	switch Driver(cfg.Driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverJSON:
		return NewJSONFile(cfg.JSONPath)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	case DriverNone:
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown tracking driver: %s", cfg.Driver)
	}
}
