package tracker

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// postgresTracker persists records in a relational table. The primary remote
// id lives in the file_id column; overflow fields, including the full
// ordered remote id list for chunked files, live in the metadata JSONB blob.
type postgresTracker struct {
	db *sql.DB
}

// recordMetadata is the overflow blob not promoted to columns.
type recordMetadata struct {
	ChunkCount   int      `json:"chunk_count"`
	ChunkFileIDs []string `json:"chunk_file_ids"`
	OriginalPath string   `json:"original_path"`
	Encrypted    bool     `json:"encrypted"`
}

// NewPostgres opens a connection pool for the given DSN and applies the
// embedded schema migrations.
func NewPostgres(ctx context.Context, dsn string) (Tracker, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &postgresTracker{db: db}, nil
}

// Track upserts the record by path, replacing every field except created_at.
func (t *postgresTracker) Track(ctx context.Context, record *FileRecord) error {
	meta, err := json.Marshal(recordMetadata{
		ChunkCount:   len(record.RemoteIDs),
		ChunkFileIDs: record.RemoteIDs,
		OriginalPath: record.Path,
		Encrypted:    record.IsEncrypted,
	})
	if err != nil {
		return &TrackingError{Op: "track", Path: record.Path, Err: err}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO files (file_id, path, file_name, mime_type, size, caption, metadata, is_chunked, is_encrypted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (path)
		DO UPDATE SET
			file_id = EXCLUDED.file_id,
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			caption = EXCLUDED.caption,
			metadata = EXCLUDED.metadata,
			is_chunked = EXCLUDED.is_chunked,
			is_encrypted = EXCLUDED.is_encrypted,
			updated_at = EXCLUDED.updated_at
	`
	primaryID := ""
	if len(record.RemoteIDs) > 0 {
		primaryID = record.RemoteIDs[0]
	}
	_, err = t.db.ExecContext(ctx, query,
		primaryID, record.Path, record.FileName, record.MimeType, record.OriginalSize,
		record.Caption, meta, record.IsChunked, record.IsEncrypted, now)
	if err != nil {
		return &TrackingError{Op: "track", Path: record.Path, Err: err}
	}
	return nil
}

// Exists reports whether a record is tracked at path.
func (t *postgresTracker) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := t.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM files WHERE path = $1)`, path).Scan(&exists)
	if err != nil {
		return false, &TrackingError{Op: "exists", Path: path, Err: err}
	}
	return exists, nil
}

// Get returns the record at path, or nil when none is tracked.
func (t *postgresTracker) Get(ctx context.Context, path string) (*FileRecord, error) {
	query := `
		SELECT path, file_id, file_name, mime_type, size, caption, metadata, is_chunked, is_encrypted, created_at, updated_at
		FROM files WHERE path = $1
	`
	record, err := scanRecord(t.db.QueryRowContext(ctx, query, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &TrackingError{Op: "get", Path: path, Err: err}
	}
	return record, nil
}

// Forget removes the record at path.
func (t *postgresTracker) Forget(ctx context.Context, path string) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM files WHERE path = $1`, path); err != nil {
		return &TrackingError{Op: "forget", Path: path, Err: err}
	}
	return nil
}

// List returns every record whose path starts with prefix.
func (t *postgresTracker) List(ctx context.Context, prefix string) ([]*FileRecord, error) {
	query := `
		SELECT path, file_id, file_name, mime_type, size, caption, metadata, is_chunked, is_encrypted, created_at, updated_at
		FROM files WHERE path LIKE $1 || '%'
	`
	rows, err := t.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, &TrackingError{Op: "list", Err: err}
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, &TrackingError{Op: "list", Err: err}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, &TrackingError{Op: "list", Err: err}
	}
	return records, nil
}

// Clear removes all records.
func (t *postgresTracker) Clear(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return &TrackingError{Op: "clear", Err: err}
	}
	return nil
}

// Close releases the connection pool.
func (t *postgresTracker) Close() error {
	return t.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*FileRecord, error) {
	var record FileRecord
	var primaryID string
	var metaRaw []byte
	err := row.Scan(&record.Path, &primaryID, &record.FileName, &record.MimeType,
		&record.OriginalSize, &record.Caption, &metaRaw,
		&record.IsChunked, &record.IsEncrypted, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var meta recordMetadata
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("malformed metadata blob: %w", err)
		}
	}
	if len(meta.ChunkFileIDs) > 0 {
		record.RemoteIDs = meta.ChunkFileIDs
	} else if primaryID != "" {
		record.RemoteIDs = []string{primaryID}
	}
	return &record, nil
}
