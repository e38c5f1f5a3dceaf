// Package storage implements the core coordinator: it decides between the
// single-segment and chunked upload paths, drives the cipher and chunker per
// segment, calls the transport port, and keeps the tracker record in step.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/viktor/chat-storage-gateway/internal/cache"
	"github.com/viktor/chat-storage-gateway/internal/chunker"
	"github.com/viktor/chat-storage-gateway/internal/crypto"
	"github.com/viktor/chat-storage-gateway/internal/metrics"
	"github.com/viktor/chat-storage-gateway/internal/remote"
	"github.com/viktor/chat-storage-gateway/internal/tracker"
)

// rawRemoteIDMinLength is the threshold for the raw-remote-id read fallback:
// an untracked path longer than this with no separator is assumed to already
// be a remote id.
const rawRemoteIDMinLength = 20

// Options carries descriptive metadata for a write. None of it is
// behaviorally load-bearing.
type Options struct {
	Caption  string
	MimeType string
}

// Config wires a Store.
type Config struct {
	Remote          remote.Remote
	Tracker         tracker.Tracker
	Cipher          crypto.Cipher
	ChunkingEnabled bool
	ChunkSize       int64
	Cache           cache.Cache
	Logger          *logrus.Logger
	Metrics         *metrics.Metrics
}

// Store is the storage orchestrator. Each operation is a short sequential
// protocol with no persisted intermediate state: a write stages remote ids in
// memory and tracks one record only after every segment succeeded, so no
// partial record is ever visible. Segments are uploaded and downloaded
// strictly in index order because recorded order is the only reassembly
// mechanism.
type Store struct {
	remote          remote.Remote
	tracker         tracker.Tracker
	cipher          crypto.Cipher
	chunkingEnabled bool
	chunkSize       int64
	cache           cache.Cache
	logger          *logrus.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
}

// New creates a Store from config.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}
	cipher := cfg.Cipher
	if cipher == nil {
		cipher = crypto.NewIdentityCipher()
	}
	return &Store{
		remote:          cfg.Remote,
		tracker:         cfg.Tracker,
		cipher:          cipher,
		chunkingEnabled: cfg.ChunkingEnabled,
		chunkSize:       cfg.ChunkSize,
		cache:           cfg.Cache,
		logger:          logger,
		metrics:         cfg.Metrics,
		tracer:          otel.Tracer("chat-storage-gateway"),
	}
}

// SetChunkSize updates the chunking threshold. Applied by the config
// reloader; takes effect for subsequent writes only.
func (s *Store) SetChunkSize(size int64) {
	if size > 0 {
		s.chunkSize = size
	}
}

// Write stores contents under path. Oversized payloads are split, each
// segment independently encrypted (when enabled) and uploaded in index
// order; one tracker record referencing all remote ids is written only after
// every segment succeeded. A failed segment aborts the whole write: no
// record is tracked, and segments already uploaded for this attempt stay
// behind as orphaned remote payloads (the remote store has no delete
// primitive).
func (s *Store) Write(ctx context.Context, path string, contents []byte, opts Options) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.Write",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.Int("file.size", len(contents)),
		),
	)
	defer span.End()

	err := s.write(ctx, path, contents, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.RecordStoreError("write", errorType(err))
		}
		return err
	}

	span.SetStatus(codes.Ok, "")
	if s.metrics != nil {
		s.metrics.RecordStoreOperation("write", time.Since(start), int64(len(contents)))
	}
	return nil
}

func (s *Store) write(ctx context.Context, path string, contents []byte, opts Options) error {
	chunked := s.chunkingEnabled && chunker.NeedsChunking(contents, s.chunkSize)

	var remoteIDs []string
	if chunked {
		segments := chunker.Split(contents, s.chunkSize)
		if s.metrics != nil {
			s.metrics.RecordChunkedWrite()
		}
		s.logger.WithFields(logrus.Fields{
			"path":     path,
			"size":     len(contents),
			"segments": len(segments),
		}).Debug("Splitting payload for chunked upload")

		remoteIDs = make([]string, 0, len(segments))
		for i, segment := range segments {
			id, err := s.uploadSegment(ctx, segment, segmentName(path, i, len(segments)))
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"path":     path,
					"segment":  i,
					"uploaded": len(remoteIDs),
				}).WithError(err).Warn("Chunked write aborted, uploaded segments are orphaned")
				return &WriteError{Path: path, Err: err}
			}
			remoteIDs = append(remoteIDs, id)
		}
	} else {
		id, err := s.uploadSegment(ctx, contents, segmentName(path, 0, 1))
		if err != nil {
			return &WriteError{Path: path, Err: err}
		}
		remoteIDs = []string{id}
	}

	record := &tracker.FileRecord{
		Path:         path,
		RemoteIDs:    remoteIDs,
		IsChunked:    chunked,
		IsEncrypted:  s.cipher.Enabled(),
		OriginalSize: int64(len(contents)),
		MimeType:     opts.MimeType,
		FileName:     baseName(path),
		Caption:      opts.Caption,
	}
	if err := s.tracker.Track(ctx, record); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, path, contents)
	}

	s.logger.WithFields(logrus.Fields{
		"path":      path,
		"size":      len(contents),
		"chunked":   chunked,
		"encrypted": s.cipher.Enabled(),
		"segments":  len(remoteIDs),
	}).Info("File written")
	return nil
}

// uploadSegment runs one segment through the cipher and the transport port.
func (s *Store) uploadSegment(ctx context.Context, segment []byte, name string) (string, error) {
	payload, err := s.cipher.Encrypt(segment)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCipherError("encrypt", errorType(err))
		}
		return "", err
	}
	if s.metrics != nil && s.cipher.Enabled() {
		s.metrics.RecordCipherOperation("encrypt")
	}

	id, err := s.remote.Upload(ctx, payload, name)
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.RecordSegmentTransfer("upload", int64(len(payload)))
	}
	return id, nil
}

// Read returns the contents stored under path. For a tracked record,
// segments are downloaded in recorded order, each decrypted when the record
// says so, and merged. An untracked path that looks like a raw remote id is
// downloaded directly without decryption.
func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.Read",
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	contents, err := s.read(ctx, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.RecordStoreError("read", errorType(err))
		}
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	if s.metrics != nil {
		s.metrics.RecordStoreOperation("read", time.Since(start), int64(len(contents)))
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, path, contents)
	}
	return contents, nil
}

func (s *Store) read(ctx context.Context, path string) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, path); ok {
			return data, nil
		}
	}

	record, err := s.tracker.Get(ctx, path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}

	if record == nil {
		// Untracked path: callers may bypass tracking entirely by passing
		// a remote id directly.
		if !looksLikeRemoteID(path) {
			return nil, &ReadError{Path: path, Err: ErrNotFound}
		}
		data, err := s.downloadSegment(ctx, path)
		if err != nil {
			return nil, &ReadError{Path: path, Err: err}
		}
		return data, nil
	}

	if record.IsEncrypted && !s.cipher.Enabled() {
		return nil, &ReadError{Path: path, Err: fmt.Errorf("record is encrypted but no encryption key is configured")}
	}

	if record.IsChunked {
		segments := make([][]byte, 0, len(record.RemoteIDs))
		for _, id := range record.RemoteIDs {
			data, err := s.downloadSegment(ctx, id)
			if err != nil {
				return nil, &ReadError{Path: path, Err: err}
			}
			if record.IsEncrypted {
				data, err = s.decryptSegment(data)
				if err != nil {
					return nil, &ReadError{Path: path, Err: err}
				}
			}
			segments = append(segments, data)
		}
		return chunker.Merge(segments), nil
	}

	data, err := s.downloadSegment(ctx, record.RemoteIDs[0])
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	if record.IsEncrypted {
		data, err = s.decryptSegment(data)
		if err != nil {
			return nil, &ReadError{Path: path, Err: err}
		}
	}
	return data, nil
}

func (s *Store) downloadSegment(ctx context.Context, remoteID string) ([]byte, error) {
	data, err := s.remote.Download(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordSegmentTransfer("download", int64(len(data)))
	}
	return data, nil
}

func (s *Store) decryptSegment(data []byte) ([]byte, error) {
	plaintext, err := s.cipher.Decrypt(data)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCipherError("decrypt", errorType(err))
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCipherOperation("decrypt")
	}
	return plaintext, nil
}

// Exists reports whether a tracker record exists for path.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return s.tracker.Exists(ctx, path)
}

// Get returns the tracker record for path, or nil when untracked.
func (s *Store) Get(ctx context.Context, path string) (*tracker.FileRecord, error) {
	return s.tracker.Get(ctx, path)
}

// List returns the tracker records whose path starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]*tracker.FileRecord, error) {
	return s.tracker.List(ctx, prefix)
}

// Forget removes the tracker record for path. The remote payload is never
// deleted; the remote store has no delete primitive.
func (s *Store) Forget(ctx context.Context, path string) error {
	if err := s.tracker.Forget(ctx, path); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, path)
	}
	if s.metrics != nil {
		s.metrics.RecordStoreOperation("forget", 0, 0)
	}
	s.logger.WithField("path", path).Info("File forgotten, remote payload left in place")
	return nil
}

// Copy re-stores source under destination: contents are read back, then
// re-chunked and re-encrypted from scratch, producing new remote ids. The
// copy never aliases the source's segments.
func (s *Store) Copy(ctx context.Context, source, destination string) error {
	contents, err := s.Read(ctx, source)
	if err != nil {
		return err
	}

	opts := Options{}
	if record, err := s.tracker.Get(ctx, source); err == nil && record != nil {
		opts.Caption = record.Caption
		opts.MimeType = record.MimeType
	}
	return s.Write(ctx, destination, contents, opts)
}

// Move is Copy followed by Forget of the source's tracker entry.
func (s *Store) Move(ctx context.Context, source, destination string) error {
	if err := s.Copy(ctx, source, destination); err != nil {
		return err
	}
	return s.Forget(ctx, source)
}

// looksLikeRemoteID applies the raw-remote-id fallback heuristic: longer
// than 20 characters and no path separator. Kept for compatibility with
// identifiers stored before tracking existed.
func looksLikeRemoteID(path string) bool {
	return len(path) > rawRemoteIDMinLength && !strings.ContainsAny(path, "/\\")
}

// segmentName builds the display name the remote shows for one segment.
func segmentName(path string, index, total int) string {
	base := baseName(path)
	if total <= 1 {
		return base
	}
	return fmt.Sprintf("%s.part%03d", base, index+1)
}

// baseName strips any leading logical directories from path.
func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// errorType maps an error to a low-cardinality metrics label.
func errorType(err error) string {
	var transportErr *remote.TransportError
	var trackingErr *tracker.TrackingError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &trackingErr):
		return "tracking"
	case errors.Is(err, crypto.ErrEncryptionFailed), errors.Is(err, crypto.ErrDecryptionFailed):
		return "crypto"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
