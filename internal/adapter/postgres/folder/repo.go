// Package folder implements the owner-scoped folder repository on PostgreSQL.
package folder

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Repo provides folder persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new folder repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const insertSQL = `
INSERT INTO folders (id, user_id, name, parent_id, created_at)
VALUES ($1, $2, $3, $4, $5)`

const renameSQL = `UPDATE folders SET name = $3 WHERE id = $1 AND user_id = $2`

const detachChildrenSQL = `UPDATE folders SET parent_id = NULL WHERE parent_id = $1 AND user_id = $2`

const deleteSQL = `DELETE FROM folders WHERE id = $1 AND user_id = $2`

// ListByUser returns every folder of userID ordered by name.
// Returns an empty slice (not nil) when there are none.
func (r *Repo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Folder, error) {
	sqlStr, args, err := postgres.Builder().
		Select("id", "user_id", "name", "parent_id", "created_at").
		From("folders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("name ASC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list folders: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := make([]domain.Folder, 0)
	for rows.Next() {
		var f domain.Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ParentID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("list folders: scan: %w", err)
		}
		f.CreatedAt = f.CreatedAt.UTC()
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// Insert stores a client-created folder.
func (r *Repo) Insert(ctx context.Context, f domain.Folder) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, insertSQL, f.ID, f.UserID, f.Name, f.ParentID, f.CreatedAt); err != nil {
		return postgres.MapError(err, "folder", f.ID)
	}
	return nil
}

// Rename sets the name of a folder owned by userID. No-op for other owners.
func (r *Repo) Rename(ctx context.Context, userID, folderID uuid.UUID, name string) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, renameSQL, folderID, userID, name); err != nil {
		return postgres.MapError(err, "folder", folderID)
	}
	return nil
}

// DetachChildren clears parent_id on the sub-folders of folderID.
func (r *Repo) DetachChildren(ctx context.Context, userID, folderID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, detachChildrenSQL, folderID, userID); err != nil {
		return postgres.MapError(err, "folder", folderID)
	}
	return nil
}

// Delete removes a folder owned by userID. Zero affected rows is not an error.
func (r *Repo) Delete(ctx context.Context, userID, folderID uuid.UUID) error {
	q := postgres.QuerierFromCtx(ctx, r.pool)
	if _, err := q.Exec(ctx, deleteSQL, folderID, userID); err != nil {
		return postgres.MapError(err, "folder", folderID)
	}
	return nil
}
