package tracker

import "context"

// noopTracker is the disabled backend: writes succeed silently, reads report
// nothing. With tracking off, reads work only through raw remote ids.
type noopTracker struct{}

// NewNoop creates the disabled tracker.
func NewNoop() Tracker { return noopTracker{} }

func (noopTracker) Track(ctx context.Context, record *FileRecord) error { return nil }

func (noopTracker) Exists(ctx context.Context, path string) (bool, error) { return false, nil }

func (noopTracker) Get(ctx context.Context, path string) (*FileRecord, error) { return nil, nil }

func (noopTracker) Forget(ctx context.Context, path string) error { return nil }

func (noopTracker) List(ctx context.Context, prefix string) ([]*FileRecord, error) {
	return nil, nil
}

func (noopTracker) Clear(ctx context.Context) error { return nil }
