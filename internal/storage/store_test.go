package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/viktor/chat-storage-gateway/internal/cache"
	"github.com/viktor/chat-storage-gateway/internal/crypto"
	"github.com/viktor/chat-storage-gateway/internal/remote"
	"github.com/viktor/chat-storage-gateway/internal/tracker"
)

// fakeRemote is an in-memory transport with optional upload failure
// injection.
type fakeRemote struct {
	objects   map[string][]byte
	uploads   int
	downloads int
	failAfter int // fail the Nth upload (1-based); 0 disables
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{objects: make(map[string][]byte)}
}

func (f *fakeRemote) Upload(ctx context.Context, data []byte, name string) (string, error) {
	f.uploads++
	if f.failAfter > 0 && f.uploads >= f.failAfter {
		return "", remote.NewTransportError("upload", errors.New("injected failure"))
	}
	id := fmt.Sprintf("remote-%06d-%s", f.uploads, name)
	f.objects[id] = append([]byte(nil), data...)
	return id, nil
}

func (f *fakeRemote) Download(ctx context.Context, remoteID string) ([]byte, error) {
	f.downloads++
	data, ok := f.objects[remoteID]
	if !ok {
		return nil, remote.NewTransportError("download", fmt.Errorf("no object %s", remoteID))
	}
	return append([]byte(nil), data...), nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestStore(t *testing.T, fake *fakeRemote, encrypt bool, chunkSize int64) (*Store, tracker.Tracker) {
	t.Helper()

	cipher := crypto.NewIdentityCipher()
	if encrypt {
		var err error
		cipher, err = crypto.NewSegmentCipher(bytes.Repeat([]byte{0x55}, crypto.KeySize))
		if err != nil {
			t.Fatalf("NewSegmentCipher: %v", err)
		}
	}

	tr := tracker.NewMemory()
	store := New(Config{
		Remote:          fake,
		Tracker:         tr,
		Cipher:          cipher,
		ChunkingEnabled: true,
		ChunkSize:       chunkSize,
		Logger:          quietLogger(),
	})
	return store, tr
}

func TestWriteSmallFileSingleSegment(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, false, 100)

	contents := []byte("small payload")
	if err := store.Write(ctx, "docs/small.txt", contents, Options{MimeType: "text/plain"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	record, err := tr.Get(ctx, "docs/small.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record == nil {
		t.Fatal("no record tracked")
	}
	if record.IsChunked {
		t.Error("small file marked chunked")
	}
	if len(record.RemoteIDs) != 1 {
		t.Errorf("expected 1 remote id, got %d", len(record.RemoteIDs))
	}
	if record.OriginalSize != int64(len(contents)) {
		t.Errorf("size = %d, want %d", record.OriginalSize, len(contents))
	}
	if record.MimeType != "text/plain" {
		t.Errorf("mime type = %q", record.MimeType)
	}
	if record.FileName != "small.txt" {
		t.Errorf("file name = %q", record.FileName)
	}
	if fake.uploads != 1 {
		t.Errorf("uploads = %d, want 1", fake.uploads)
	}
}

func TestWriteAtBoundaryDoesNotChunk(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, false, 100)

	if err := store.Write(ctx, "exact.bin", make([]byte, 100), Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	record, _ := tr.Get(ctx, "exact.bin")
	if record.IsChunked {
		t.Error("payload exactly at the chunk size must not chunk")
	}
	if fake.uploads != 1 {
		t.Errorf("uploads = %d, want 1", fake.uploads)
	}
}

func TestWriteOversizedChunksInOrder(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, false, 100)

	contents := make([]byte, 250)
	for i := range contents {
		contents[i] = byte(i)
	}

	if err := store.Write(ctx, "big.bin", contents, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	record, _ := tr.Get(ctx, "big.bin")
	if !record.IsChunked {
		t.Fatal("oversized file not marked chunked")
	}
	if len(record.RemoteIDs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(record.RemoteIDs))
	}

	// Segment sizes follow split order: full, full, remainder.
	wantSizes := []int{100, 100, 50}
	for i, id := range record.RemoteIDs {
		if len(fake.objects[id]) != wantSizes[i] {
			t.Errorf("segment %d has %d bytes, want %d", i, len(fake.objects[id]), wantSizes[i])
		}
	}

	got, err := store.Read(ctx, "big.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Error("chunked round trip mismatch")
	}
}

func TestWriteEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, true, 100)

	contents := make([]byte, 250)
	for i := range contents {
		contents[i] = byte(i * 3)
	}

	if err := store.Write(ctx, "secret.bin", contents, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	record, _ := tr.Get(ctx, "secret.bin")
	if !record.IsEncrypted {
		t.Error("record not marked encrypted")
	}

	// Stored segments must not contain the plaintext.
	for _, id := range record.RemoteIDs {
		if bytes.Contains(fake.objects[id], contents[:50]) {
			t.Error("remote object contains plaintext")
		}
	}

	got, err := store.Read(ctx, "secret.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Error("encrypted round trip mismatch")
	}
}

func TestWritePartialFailureTracksNothing(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	fake.failAfter = 2 // first segment succeeds, second fails
	store, tr := newTestStore(t, fake, false, 100)

	err := store.Write(ctx, "doomed.bin", make([]byte, 250), Options{})
	if err == nil {
		t.Fatal("expected write to fail")
	}

	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Errorf("expected WriteError, got %T", err)
	}

	// All-or-nothing: no record may exist for the failed write.
	record, _ := tr.Get(ctx, "doomed.bin")
	if record != nil {
		t.Error("partial write left a tracked record")
	}

	// The orphaned first segment stays on the remote; there is no cleanup.
	if len(fake.objects) != 1 {
		t.Errorf("expected 1 orphaned object, got %d", len(fake.objects))
	}
}

func TestReadUntrackedShortPath(t *testing.T) {
	store, _ := newTestStore(t, newFakeRemote(), false, 100)

	_, err := store.Read(context.Background(), "missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReadRawRemoteIDFallback(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, _ := newTestStore(t, fake, true, 100)

	// Remote payload stored outside tracking, addressed by its raw id. The
	// fallback must not attempt decryption even though the cipher is on.
	rawID := "BQACAgIAAxkBAAIBOWXrawpayload12345"
	fake.objects[rawID] = []byte("raw remote bytes")

	got, err := store.Read(ctx, rawID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("raw remote bytes")) {
		t.Error("raw fallback returned transformed data")
	}
}

func TestReadLongPathWithSeparatorIsNotFallback(t *testing.T) {
	store, _ := newTestStore(t, newFakeRemote(), false, 100)

	// Long, but contains a separator, so it is a path, not a remote id.
	path := "some/deeply/nested/directory/structure/file.txt"
	_, err := store.Read(context.Background(), path)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReadEncryptedRecordWithoutCipher(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()

	encStore, tr := newTestStore(t, fake, true, 100)
	if err := encStore.Write(ctx, "secret.txt", []byte("classified"), Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Same tracker and remote, but encryption no longer configured.
	plainStore := New(Config{
		Remote:  fake,
		Tracker: tr,
		Cipher:  crypto.NewIdentityCipher(),
		Logger:  quietLogger(),
	})

	if _, err := plainStore.Read(ctx, "secret.txt"); err == nil {
		t.Error("reading an encrypted record without a key must fail")
	}
}

func TestForgetLeavesRemoteAlone(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, false, 100)

	store.Write(ctx, "a.txt", []byte("contents"), Options{})
	objectsBefore := len(fake.objects)

	if err := store.Forget(ctx, "a.txt"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	record, _ := tr.Get(ctx, "a.txt")
	if record != nil {
		t.Error("record still tracked after forget")
	}
	if len(fake.objects) != objectsBefore {
		t.Error("forget touched remote objects")
	}

	if _, err := store.Read(ctx, "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after forget, got %v", err)
	}
}

func TestCopyProducesNewSegments(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, true, 100)

	contents := make([]byte, 250)
	store.Write(ctx, "src.bin", contents, Options{Caption: "original", MimeType: "application/octet-stream"})

	if err := store.Copy(ctx, "src.bin", "dst.bin"); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	src, _ := tr.Get(ctx, "src.bin")
	dst, _ := tr.Get(ctx, "dst.bin")
	if dst == nil {
		t.Fatal("no destination record")
	}
	for _, srcID := range src.RemoteIDs {
		for _, dstID := range dst.RemoteIDs {
			if srcID == dstID {
				t.Error("copy aliases source segments")
			}
		}
	}
	if dst.Caption != "original" || dst.MimeType != "application/octet-stream" {
		t.Error("copy dropped descriptive metadata")
	}

	got, err := store.Read(ctx, "dst.bin")
	if err != nil {
		t.Fatalf("Read copy: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Error("copy contents mismatch")
	}
}

func TestMoveForgetsSource(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store, tr := newTestStore(t, fake, false, 100)

	store.Write(ctx, "src.txt", []byte("moving"), Options{})

	if err := store.Move(ctx, "src.txt", "dst.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	if record, _ := tr.Get(ctx, "src.txt"); record != nil {
		t.Error("source still tracked after move")
	}

	got, err := store.Read(ctx, "dst.txt")
	if err != nil {
		t.Fatalf("Read destination: %v", err)
	}
	if !bytes.Equal(got, []byte("moving")) {
		t.Error("move contents mismatch")
	}
}

func TestExistsAndList(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, newFakeRemote(), false, 100)

	store.Write(ctx, "docs/a.txt", []byte("a"), Options{})
	store.Write(ctx, "docs/b.txt", []byte("b"), Options{})
	store.Write(ctx, "img/c.png", []byte("c"), Options{})

	exists, err := store.Exists(ctx, "docs/a.txt")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}
	exists, _ = store.Exists(ctx, "docs/z.txt")
	if exists {
		t.Error("Exists true for untracked path")
	}

	records, err := store.List(ctx, "docs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestChunkingDisabledNeverSplits(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()
	store := New(Config{
		Remote:          fake,
		Tracker:         tracker.NewMemory(),
		Cipher:          crypto.NewIdentityCipher(),
		ChunkingEnabled: false,
		ChunkSize:       100,
		Logger:          quietLogger(),
	})

	if err := store.Write(ctx, "big.bin", make([]byte, 500), Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fake.uploads != 1 {
		t.Errorf("uploads = %d, want 1 with chunking disabled", fake.uploads)
	}
}

func TestReadCacheSkipsRemote(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRemote()

	store := New(Config{
		Remote:          fake,
		Tracker:         tracker.NewMemory(),
		Cipher:          crypto.NewIdentityCipher(),
		ChunkingEnabled: true,
		ChunkSize:       100,
		Cache:           cache.NewMemoryCache(1<<20, 16, time.Minute),
		Logger:          quietLogger(),
	})

	contents := []byte("cache me")
	if err := store.Write(ctx, "a.txt", contents, Options{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The write populated the cache, so the read never hits the remote.
	got, err := store.Read(ctx, "a.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Error("cached read mismatch")
	}
	if fake.downloads != 0 {
		t.Errorf("downloads = %d, want 0 for cached read", fake.downloads)
	}

	// Forget invalidates; the next read misses the cache and the tracker.
	store.Forget(ctx, "a.txt")
	if _, err := store.Read(ctx, "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after forget, got %v", err)
	}
}

func TestSegmentNames(t *testing.T) {
	if got := segmentName("docs/report.pdf", 0, 1); got != "report.pdf" {
		t.Errorf("single segment name = %q", got)
	}
	if got := segmentName("docs/report.pdf", 0, 3); got != "report.pdf.part001" {
		t.Errorf("first chunk name = %q", got)
	}
	if got := segmentName("docs/report.pdf", 2, 3); got != "report.pdf.part003" {
		t.Errorf("last chunk name = %q", got)
	}
}

func TestLooksLikeRemoteID(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"BQACAgIAAxkBAAIBOWXr12345", true},
		{"short.txt", false},
		{"a/very/long/path/that/is/not/an/id", false},
		{strings.Repeat("x", 21), true},
		{strings.Repeat("x", 20), false},
		{strings.Repeat("x", 30) + "\\windows", false},
	}

	for _, tt := range tests {
		if got := looksLikeRemoteID(tt.path); got != tt.want {
			t.Errorf("looksLikeRemoteID(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
