// Package notetag implements the note-tag association repository. The
// note_tags table has no owner column, so every statement scopes through the
// owning notes and tags rows.
package notetag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Repo provides note-tag link persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new note-tag repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL
// ---------------------------------------------------------------------------

const listByUserSQL = `
SELECT nt.note_id, nt.tag_id
FROM note_tags nt
JOIN notes n ON n.id = nt.note_id
WHERE n.user_id = $1
ORDER BY nt.note_id, nt.tag_id`

const linkSQL = `
INSERT INTO note_tags (note_id, tag_id)
SELECT $1::uuid, $2::uuid
WHERE EXISTS (SELECT 1 FROM notes WHERE id = $1 AND user_id = $3)
  AND EXISTS (SELECT 1 FROM tags WHERE id = $2 AND user_id = $3)
ON CONFLICT (note_id, tag_id) DO NOTHING`

const unlinkSQL = `
DELETE FROM note_tags nt
USING notes n
WHERE nt.note_id = $1 AND nt.tag_id = $2
  AND n.id = nt.note_id AND n.user_id = $3`

const unlinkByNoteSQL = `
DELETE FROM note_tags nt
USING notes n
WHERE nt.note_id = $1 AND n.id = nt.note_id AND n.user_id = $2`

const unlinkByTagSQL = `
DELETE FROM note_tags nt
USING tags t
WHERE nt.tag_id = $1 AND t.id = nt.tag_id AND t.user_id = $2`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// ListByUser returns the links whose note belongs to userID.
func (r *Repo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.NoteTag, error) {
	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list note tags: %w", err)
	}
	defer rows.Close()

	links := make([]domain.NoteTag, 0)
	for rows.Next() {
		var l domain.NoteTag
		if err := rows.Scan(&l.NoteID, &l.TagID); err != nil {
			return nil, fmt.Errorf("list note tags: scan: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list note tags: %w", err)
	}
	return links, nil
}

// Link attaches tagID to noteID when both belong to userID.
// Linking an existing pair, or rows of another owner, is a no-op.
func (r *Repo) Link(ctx context.Context, userID, noteID, tagID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, linkSQL, noteID, tagID, userID); err != nil {
		return postgres.MapError(err, "note_tag", noteID)
	}
	return nil
}

// Unlink removes one link of a note owned by userID.
func (r *Repo) Unlink(ctx context.Context, userID, noteID, tagID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, unlinkSQL, noteID, tagID, userID); err != nil {
		return postgres.MapError(err, "note_tag", noteID)
	}
	return nil
}

// UnlinkNote removes every link of a note owned by userID.
func (r *Repo) UnlinkNote(ctx context.Context, userID, noteID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, unlinkByNoteSQL, noteID, userID); err != nil {
		return postgres.MapError(err, "note_tag", noteID)
	}
	return nil
}

// UnlinkTag removes every link of a tag owned by userID.
func (r *Repo) UnlinkTag(ctx context.Context, userID, tagID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, unlinkByTagSQL, tagID, userID); err != nil {
		return postgres.MapError(err, "note_tag", tagID)
	}
	return nil
}
