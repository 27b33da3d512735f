// Package store provides the durable local key-value area backing the
// bookmark library.
//
// The store is an embedded SQLite database holding whole entity collections
// as JSON blobs under well-known keys, mirroring the flat storage area the
// sync engine was designed around. It performs no merge logic; the
// coordinator in internal/sync owns all merging and is the only writer of
// shared collections.
//
// Local persistence errors are never swallowed: losing a local write risks
// data loss, so every failure propagates to the caller.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/webcollect/collector/internal/schema"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Well-known collection keys.
const (
	KeyBookmarks  = "bookmarks"
	KeyCategories = "categories"
	KeyRetryQueue = "retry_queue"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store is closed")

// Store wraps the embedded SQLite database holding the local library.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it will be created along with the schema.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL mode for concurrent reads during writes
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the kv table if it doesn't exist. Idempotent.
func (s *Store) initSchema() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(ddl); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// Get reads the raw JSON blob stored under key.
// Returns (nil, nil) when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s.conn == nil {
		return nil, ErrClosed
	}
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return []byte(value), nil
}

// Set writes the raw JSON blob under key, replacing any previous value.
// The write is durable when Set returns.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if s.conn == nil {
		return ErrClosed
	}
	query := `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := s.conn.ExecContext(ctx, query, key, string(value), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// SetAll writes multiple keys in one transaction: either every key is
// persisted or none are.
func (s *Store) SetAll(ctx context.Context, values map[string][]byte) error {
	if s.conn == nil {
		return ErrClosed
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, query, key, string(value), now); err != nil {
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are ignored (idempotent).
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if s.conn == nil {
		return ErrClosed
	}
	for _, key := range keys {
		if _, err := s.conn.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}
	}
	return nil
}

// getJSON unmarshals the blob under key into out; missing keys leave out
// untouched and return false.
func (s *Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return true, nil
}

// setJSON marshals v and stores it under key.
func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// Bookmarks returns the full local bookmark list.
// An absent collection is an empty list, not an error.
func (s *Store) Bookmarks(ctx context.Context) ([]*schema.Bookmark, error) {
	var bookmarks []*schema.Bookmark
	if _, err := s.getJSON(ctx, KeyBookmarks, &bookmarks); err != nil {
		return nil, err
	}
	if bookmarks == nil {
		bookmarks = []*schema.Bookmark{}
	}
	return bookmarks, nil
}

// SetBookmarks replaces the full local bookmark list.
func (s *Store) SetBookmarks(ctx context.Context, bookmarks []*schema.Bookmark) error {
	return s.setJSON(ctx, KeyBookmarks, bookmarks)
}

// Categories returns the local category tree.
// If none has been stored yet, the seeded default tree is returned; the
// caller decides whether to persist it.
func (s *Store) Categories(ctx context.Context) ([]schema.Category, error) {
	var categories []schema.Category
	ok, err := s.getJSON(ctx, KeyCategories, &categories)
	if err != nil {
		return nil, err
	}
	if !ok || len(categories) == 0 {
		return schema.DefaultCategories(), nil
	}
	return categories, nil
}

// SetCategories replaces the local category tree.
func (s *Store) SetCategories(ctx context.Context, categories []schema.Category) error {
	return s.setJSON(ctx, KeyCategories, categories)
}

// RetryQueue returns the persisted retry ledger.
func (s *Store) RetryQueue(ctx context.Context) ([]schema.RetryEntry, error) {
	var entries []schema.RetryEntry
	if _, err := s.getJSON(ctx, KeyRetryQueue, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []schema.RetryEntry{}
	}
	return entries, nil
}

// SetRetryQueue replaces the persisted retry ledger.
func (s *Store) SetRetryQueue(ctx context.Context, entries []schema.RetryEntry) error {
	return s.setJSON(ctx, KeyRetryQueue, entries)
}

// ReassignCategory rewrites every bookmark referencing oldName to newName in
// one durable write, bumping each rewritten bookmark's UpdatedAt. Bookmarks
// reference categories by display name, so a category rename (or delete,
// with newName the default bucket) must fan out here rather than being left
// to drift.
//
// Returns the number of bookmarks rewritten.
func (s *Store) ReassignCategory(ctx context.Context, oldName, newName string) (int, error) {
	bookmarks, err := s.Bookmarks(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, b := range bookmarks {
		if b.Category == oldName {
			b.Category = newName
			b.UpdateTimestamp()
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}

	if err := s.SetBookmarks(ctx, bookmarks); err != nil {
		return 0, err
	}
	return changed, nil
}
