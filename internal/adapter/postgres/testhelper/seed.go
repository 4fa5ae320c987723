package testhelper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Now returns the current time at the precision timestamptz stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SeedNote inserts a note for userID updated at the given time.
func SeedNote(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, updatedAt time.Time) domain.Note {
	t.Helper()

	n := domain.Note{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "note " + uuid.NewString()[:8],
		Content:   "",
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO notes (id, user_id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.UserID, n.Title, n.Content, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedNote: %v", err)
	}
	return n
}

// SeedFolder inserts a folder for userID.
func SeedFolder(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, name string) domain.Folder {
	t.Helper()

	f := domain.Folder{ID: uuid.New(), UserID: userID, Name: name, CreatedAt: Now()}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO folders (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.UserID, f.Name, f.CreatedAt,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedFolder: %v", err)
	}
	return f
}

// SeedTag inserts a tag for userID.
func SeedTag(t *testing.T, pool *pgxpool.Pool, userID uuid.UUID, name string) domain.Tag {
	t.Helper()

	tag := domain.Tag{ID: uuid.New(), UserID: userID, Name: name}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO tags (id, user_id, name) VALUES ($1, $2, $3)`,
		tag.ID, tag.UserID, tag.Name,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedTag: %v", err)
	}
	return tag
}

// SeedLink links a note to a tag.
func SeedLink(t *testing.T, pool *pgxpool.Pool, noteID, tagID uuid.UUID) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO note_tags (note_id, tag_id) VALUES ($1, $2)`, noteID, tagID)
	if err != nil {
		t.Fatalf("testhelper: SeedLink: %v", err)
	}
}
