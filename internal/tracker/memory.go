package tracker

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memoryTracker is the reference in-memory implementation: a mutex-guarded
// map keyed by path. It is authoritative for Track semantics: a second Track
// at the same path replaces the record in full, preserving only CreatedAt.
type memoryTracker struct {
	mu      sync.RWMutex
	records map[string]*FileRecord
}

// NewMemory creates the in-memory tracker.
func NewMemory() Tracker {
	return &memoryTracker{
		records: make(map[string]*FileRecord),
	}
}

// Track persists record, fully overwriting any prior record at the path.
func (t *memoryTracker) Track(ctx context.Context, record *FileRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored := record.Clone()
	now := time.Now().UTC()
	stored.UpdatedAt = now
	if prev, ok := t.records[record.Path]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	t.records[record.Path] = stored
	return nil
}

// Exists reports whether a record is tracked at path.
func (t *memoryTracker) Exists(ctx context.Context, path string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.records[path]
	return ok, nil
}

// Get returns the record at path, or nil when none is tracked.
func (t *memoryTracker) Get(ctx context.Context, path string) (*FileRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	record, ok := t.records[path]
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

// Forget removes the record at path.
func (t *memoryTracker) Forget(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, path)
	return nil
}

// List returns every record whose path starts with prefix.
func (t *memoryTracker) List(ctx context.Context, prefix string) ([]*FileRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	records := make([]*FileRecord, 0, len(t.records))
	for path, record := range t.records {
		if strings.HasPrefix(path, prefix) {
			records = append(records, record.Clone())
		}
	}
	return records, nil
}

// Clear removes all records.
func (t *memoryTracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*FileRecord)
	return nil
}
