// Package tag implements the owner-scoped tag repository on PostgreSQL.
package tag

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Repo provides tag persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new tag repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ListByUser returns every tag of userID ordered by name.
func (r *Repo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Tag, error) {
	sqlStr, args, err := postgres.Builder().
		Select("id", "user_id", "name").
		From("tags").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("name ASC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tags: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.pool).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]domain.Tag, 0)
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name); err != nil {
			return nil, fmt.Errorf("list tags: scan: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// Insert stores a client-created tag.
func (r *Repo) Insert(ctx context.Context, t domain.Tag) error {
	sqlStr, args, err := postgres.Builder().
		Insert("tags").
		Columns("id", "user_id", "name").
		Values(t.ID, t.UserID, t.Name).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert tag: %w", err)
	}
	if _, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, sqlStr, args...); err != nil {
		return postgres.MapError(err, "tag", t.ID)
	}
	return nil
}

// Delete removes a tag owned by userID. Zero affected rows is not an error.
func (r *Repo) Delete(ctx context.Context, userID, tagID uuid.UUID) error {
	sqlStr, args, err := postgres.Builder().
		Delete("tags").
		Where(sq.Eq{"id": tagID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete tag: %w", err)
	}
	if _, err := postgres.QuerierFromCtx(ctx, r.pool).Exec(ctx, sqlStr, args...); err != nil {
		return postgres.MapError(err, "tag", tagID)
	}
	return nil
}
