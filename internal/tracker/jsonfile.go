package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// jsonFileTracker persists records as a single pretty-printed JSON document
// mapping path -> record. Every mutation rewrites the whole file atomically
// (write temp, rename); there is no incremental append.
type jsonFileTracker struct {
	mu   sync.Mutex
	path string
}

// NewJSONFile creates a flat-file tracker backed by the given path. The file
// is created on first mutation; an existing file is validated up front.
func NewJSONFile(path string) (Tracker, error) {
	t := &jsonFileTracker{path: path}
	if _, err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// load reads the whole document. A missing file is an empty document.
func (t *jsonFileTracker) load() (map[string]*FileRecord, error) {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return make(map[string]*FileRecord), nil
	}
	if err != nil {
		return nil, &TrackingError{Op: "load", Err: err}
	}
	if len(data) == 0 {
		return make(map[string]*FileRecord), nil
	}

	var records map[string]*FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &TrackingError{Op: "load", Err: fmt.Errorf("malformed tracking file %s: %w", t.path, err)}
	}
	if records == nil {
		records = make(map[string]*FileRecord)
	}
	return records, nil
}

// save rewrites the whole document atomically.
func (t *jsonFileTracker) save(records map[string]*FileRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &TrackingError{Op: "save", Err: err}
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".files-*.json")
	if err != nil {
		return &TrackingError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &TrackingError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &TrackingError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return &TrackingError{Op: "save", Err: err}
	}
	return nil
}

// Track persists record, fully overwriting any prior record at the path.
// Unlike the memory backend, CreatedAt is not preserved across overwrites.
func (t *jsonFileTracker) Track(ctx context.Context, record *FileRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return err
	}

	stored := record.Clone()
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	records[record.Path] = stored
	return t.save(records)
}

// Exists reports whether a record is tracked at path.
func (t *jsonFileTracker) Exists(ctx context.Context, path string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return false, err
	}
	_, ok := records[path]
	return ok, nil
}

// Get returns the record at path, or nil when none is tracked.
func (t *jsonFileTracker) Get(ctx context.Context, path string) (*FileRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return nil, err
	}
	record, ok := records[path]
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

// Forget removes the record at path.
func (t *jsonFileTracker) Forget(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return err
	}
	if _, ok := records[path]; !ok {
		return nil
	}
	delete(records, path)
	return t.save(records)
}

// List returns every record whose path starts with prefix.
func (t *jsonFileTracker) List(ctx context.Context, prefix string) ([]*FileRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.load()
	if err != nil {
		return nil, err
	}
	matched := make([]*FileRecord, 0, len(records))
	for path, record := range records {
		if strings.HasPrefix(path, prefix) {
			matched = append(matched, record.Clone())
		}
	}
	return matched, nil
}

// Clear removes all records.
func (t *jsonFileTracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(make(map[string]*FileRecord))
}
