// Package localcache is the durable on-device snapshot of an account's notes,
// folders, tags, note-tag links and UI selection. Each collection is stored as
// one JSON document in a SQLite key-value table. The cache has no merge
// semantics of its own.
package localcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver" // database/sql driver "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // bundled SQLite build

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Storage keys.
const (
	KeyNotes        = "cache.notes"
	KeyFolders      = "cache.folders"
	KeyTags         = "cache.tags"
	KeyNoteTags     = "cache.noteTags"
	KeyActiveNoteID = "ui.activeNoteId"
	KeyOwner        = "session.owner"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

const upsertSQL = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// Cache is a SQLite-backed key-value store of JSON snapshots.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Cache{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Ping checks that the cache file is still usable.
func (c *Cache) Ping(ctx context.Context) error {
	if c.db == nil {
		return errors.New("localcache: closed")
	}
	return c.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

func (c *Cache) Notes(ctx context.Context) ([]domain.Note, error) {
	return readCollection[domain.Note](ctx, c, KeyNotes)
}

func (c *Cache) SetNotes(ctx context.Context, notes []domain.Note) error {
	return c.set(ctx, KeyNotes, notes)
}

func (c *Cache) Folders(ctx context.Context) ([]domain.Folder, error) {
	return readCollection[domain.Folder](ctx, c, KeyFolders)
}

func (c *Cache) SetFolders(ctx context.Context, folders []domain.Folder) error {
	return c.set(ctx, KeyFolders, folders)
}

func (c *Cache) Tags(ctx context.Context) ([]domain.Tag, error) {
	return readCollection[domain.Tag](ctx, c, KeyTags)
}

func (c *Cache) SetTags(ctx context.Context, tags []domain.Tag) error {
	return c.set(ctx, KeyTags, tags)
}

func (c *Cache) NoteTags(ctx context.Context) ([]domain.NoteTag, error) {
	return readCollection[domain.NoteTag](ctx, c, KeyNoteTags)
}

func (c *Cache) SetNoteTags(ctx context.Context, links []domain.NoteTag) error {
	return c.set(ctx, KeyNoteTags, links)
}

// SaveSnapshot writes all four collections in a single transaction.
func (c *Cache) SaveSnapshot(ctx context.Context, s domain.Dataset) error {
	entries := []struct {
		key string
		val any
	}{
		{KeyNotes, s.Notes},
		{KeyFolders, s.Folders},
		{KeyTags, s.Tags},
		{KeyNoteTags, s.NoteTags},
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stamp := c.now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		raw, err := encode(e.val)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.key, err)
		}
		if _, err := tx.ExecContext(ctx, upsertSQL, e.key, raw, stamp); err != nil {
			return fmt.Errorf("write %s: %w", e.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// UI selection
// ---------------------------------------------------------------------------

// ActiveNoteID returns the persisted selection, or nil when none is stored
// or the stored value is not a valid id.
func (c *Cache) ActiveNoteID(ctx context.Context) (*uuid.UUID, error) {
	raw, ok, err := c.get(ctx, KeyActiveNoteID)
	if err != nil || !ok {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil
	}
	return &id, nil
}

// SetActiveNoteID persists the selection. Nil removes it.
func (c *Cache) SetActiveNoteID(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, KeyActiveNoteID); err != nil {
			return fmt.Errorf("delete %s: %w", KeyActiveNoteID, err)
		}
		return nil
	}
	stamp := c.now().UTC().Format(time.RFC3339Nano)
	if _, err := c.db.ExecContext(ctx, upsertSQL, KeyActiveNoteID, id.String(), stamp); err != nil {
		return fmt.Errorf("write %s: %w", KeyActiveNoteID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Owner
// ---------------------------------------------------------------------------

// Owner returns the account the cached data belongs to, uuid.Nil when none
// is recorded.
func (c *Cache) Owner(ctx context.Context) (uuid.UUID, error) {
	raw, ok, err := c.get(ctx, KeyOwner)
	if err != nil || !ok {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil
	}
	return id, nil
}

// SetOwner records the account the cached data belongs to.
func (c *Cache) SetOwner(ctx context.Context, owner uuid.UUID) error {
	stamp := c.now().UTC().Format(time.RFC3339Nano)
	if _, err := c.db.ExecContext(ctx, upsertSQL, KeyOwner, owner.String(), stamp); err != nil {
		return fmt.Errorf("write %s: %w", KeyOwner, err)
	}
	return nil
}

// Clear removes every stored key, the owner included. Used on sign-out.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (c *Cache) get(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, true, nil
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	raw, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	stamp := c.now().UTC().Format(time.RFC3339Nano)
	if _, err := c.db.ExecContext(ctx, upsertSQL, key, raw, stamp); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// readCollection decodes a stored JSON array. A missing key or malformed
// value yields an empty slice.
func readCollection[T any](ctx context.Context, c *Cache, key string) ([]T, error) {
	raw, ok, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []T{}, nil
	}
	return out, nil
}

// encode marshals v, writing nil slices as [] rather than null.
func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}
