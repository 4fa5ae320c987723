// Package note implements the owner-scoped note repository on PostgreSQL.
package note

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Repo provides note persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new note repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var columns = []string{"id", "user_id", "title", "content", "folder_id", "created_at", "updated_at"}

// ---------------------------------------------------------------------------
// SQL
// ---------------------------------------------------------------------------

const insertSQL = `
INSERT INTO notes (id, user_id, title, content, folder_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const updateSQL = `
UPDATE notes
SET title = $3, content = $4, folder_id = $5, updated_at = $6
WHERE id = $1 AND user_id = $2`

const deleteSQL = `DELETE FROM notes WHERE id = $1 AND user_id = $2`

const clearFolderSQL = `UPDATE notes SET folder_id = NULL WHERE folder_id = $1 AND user_id = $2`

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// FetchPage returns up to limit notes of userID ordered by updated_at
// descending. With a cursor only notes strictly older than it are returned.
// hasMore is true when the page is full. When the remaining count is an exact
// multiple of limit the final full page still reports more and the next page
// comes back empty with hasMore false.
func (r *Repo) FetchPage(ctx context.Context, userID uuid.UUID, limit int, cursor *time.Time) ([]domain.Note, bool, error) {
	if limit <= 0 {
		return nil, false, domain.NewValidationError("limit", "must be positive")
	}

	query := postgres.Builder().
		Select(columns...).
		From("notes").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at DESC", "id").
		Limit(uint64(limit))
	if cursor != nil {
		query = query.Where(sq.Lt{"updated_at": *cursor})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build fetch page: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, false, fmt.Errorf("fetch notes page: %w", err)
	}
	defer rows.Close()

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, false, fmt.Errorf("fetch notes page: %w", err)
	}

	return notes, len(notes) == limit, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Insert stores a client-created note.
// Returns domain.ErrAlreadyExists if the id is taken.
func (r *Repo) Insert(ctx context.Context, n domain.Note) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	_, err := q.Exec(ctx, insertSQL, n.ID, n.UserID, n.Title, n.Content, n.FolderID, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return postgres.MapError(err, "note", n.ID)
	}
	return nil
}

// Update overwrites the mutable fields of a note owned by n.UserID.
// A note of another owner, or a missing one, is left alone without error.
func (r *Repo) Update(ctx context.Context, n domain.Note) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	_, err := q.Exec(ctx, updateSQL, n.ID, n.UserID, n.Title, n.Content, n.FolderID, n.UpdatedAt)
	if err != nil {
		return postgres.MapError(err, "note", n.ID)
	}
	return nil
}

// Delete removes a note owned by userID. Zero affected rows is not an error.
func (r *Repo) Delete(ctx context.Context, userID, noteID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, deleteSQL, noteID, userID); err != nil {
		return postgres.MapError(err, "note", noteID)
	}
	return nil
}

// ClearFolder detaches every note of userID from folderID.
func (r *Repo) ClearFolder(ctx context.Context, userID, folderID uuid.UUID) (int64, error) {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	tag, err := q.Exec(ctx, clearFolderSQL, folderID, userID)
	if err != nil {
		return 0, postgres.MapError(err, "folder", folderID)
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// scanning
// ---------------------------------------------------------------------------

func scanNotes(rows pgx.Rows) ([]domain.Note, error) {
	notes := make([]domain.Note, 0)
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.FolderID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		n.UpdatedAt = n.UpdatedAt.UTC()
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notes, nil
}
