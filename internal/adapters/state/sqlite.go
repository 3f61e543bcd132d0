// Package state provides stores that remember which remote revision each
// cached file was downloaded from.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS local_records (
	key           TEXT PRIMARY KEY,
	size          INTEGER NOT NULL,
	etag          TEXT NOT NULL DEFAULT '',
	version       TEXT NOT NULL DEFAULT '',
	last_modified INTEGER NOT NULL DEFAULT 0,
	downloaded_at INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore implements output.StateStore on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ output.StateStore = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}
	// The store is written from the event loop only.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Operation: "migrate", Key: path, Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

// Get implements output.StateStore.
func (s *SQLiteStore) Get(ctx context.Context, key string) (domain.LocalRecord, bool, error) {
	var (
		rec          = domain.LocalRecord{Key: key}
		lastModified int64
		downloadedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT size, etag, version, last_modified, downloaded_at FROM local_records WHERE key = ?`,
		key,
	).Scan(&rec.Remote.Size, &rec.Remote.ETag, &rec.Remote.Version, &lastModified, &downloadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LocalRecord{}, false, nil
	}
	if err != nil {
		return domain.LocalRecord{}, false, &domain.StorageError{Operation: "get", Key: key, Err: err}
	}

	rec.Remote.LastModified = fromUnixNano(lastModified)
	rec.DownloadedAt = fromUnixNano(downloadedAt)
	return rec, true, nil
}

// Put implements output.StateStore.
func (s *SQLiteStore) Put(ctx context.Context, rec domain.LocalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_records (key, size, etag, version, last_modified, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			size = excluded.size,
			etag = excluded.etag,
			version = excluded.version,
			last_modified = excluded.last_modified,
			downloaded_at = excluded.downloaded_at`,
		rec.Key,
		rec.Remote.Size,
		rec.Remote.ETag,
		rec.Remote.Version,
		toUnixNano(rec.Remote.LastModified),
		toUnixNano(rec.DownloadedAt),
	)
	if err != nil {
		return &domain.StorageError{Operation: "put", Key: rec.Key, Err: err}
	}
	return nil
}

// Delete implements output.StateStore.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_records WHERE key = ?`, key); err != nil {
		return &domain.StorageError{Operation: "delete", Key: key, Err: err}
	}
	return nil
}

// Close implements output.StateStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
