// Package remote is the Remote Data Source: owner-scoped reads, writes and
// change subscriptions over the PostgreSQL repositories. Delete cascades are
// executed explicitly inside one transaction and are also backed by foreign
// key actions in the schema.
package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/notetaken-sync/internal/adapter/postgres"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres/folder"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres/note"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres/notetag"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres/realtime"
	"github.com/heartmarshall/notetaken-sync/internal/adapter/postgres/tag"
	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// Source implements the remote side of sync for one database.
type Source struct {
	tx      *postgres.TxManager
	notes   *note.Repo
	folders *folder.Repo
	tags    *tag.Repo
	links   *notetag.Repo
	feed    *realtime.Feed
}

// New wires the repositories over pool.
func New(pool *pgxpool.Pool, log *slog.Logger) *Source {
	return &Source{
		tx:      postgres.NewTxManager(pool),
		notes:   note.New(pool),
		folders: folder.New(pool),
		tags:    tag.New(pool),
		links:   notetag.New(pool),
		feed:    realtime.New(pool, log),
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *Source) FetchNotesPage(ctx context.Context, owner uuid.UUID, limit int, cursor *time.Time) ([]domain.Note, bool, error) {
	return s.notes.FetchPage(ctx, owner, limit, cursor)
}

func (s *Source) ListFolders(ctx context.Context, owner uuid.UUID) ([]domain.Folder, error) {
	return s.folders.ListByUser(ctx, owner)
}

func (s *Source) ListTags(ctx context.Context, owner uuid.UUID) ([]domain.Tag, error) {
	return s.tags.ListByUser(ctx, owner)
}

func (s *Source) ListNoteTags(ctx context.Context, owner uuid.UUID) ([]domain.NoteTag, error) {
	return s.links.ListByUser(ctx, owner)
}

// ---------------------------------------------------------------------------
// Notes
// ---------------------------------------------------------------------------

func (s *Source) InsertNote(ctx context.Context, n domain.Note) error {
	return s.notes.Insert(ctx, n)
}

func (s *Source) UpdateNote(ctx context.Context, n domain.Note) error {
	return s.notes.Update(ctx, n)
}

// DeleteNote removes the note's tag links and then the note.
func (s *Source) DeleteNote(ctx context.Context, owner, noteID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.links.UnlinkNote(ctx, owner, noteID); err != nil {
			return err
		}
		return s.notes.Delete(ctx, owner, noteID)
	})
}

// ---------------------------------------------------------------------------
// Folders
// ---------------------------------------------------------------------------

func (s *Source) InsertFolder(ctx context.Context, f domain.Folder) error {
	return s.folders.Insert(ctx, f)
}

func (s *Source) RenameFolder(ctx context.Context, owner, folderID uuid.UUID, name string) error {
	return s.folders.Rename(ctx, owner, folderID, name)
}

// DeleteFolder clears folder_id on the folder's notes, detaches sub-folders
// and deletes the folder. Notes are never deleted by this cascade.
func (s *Source) DeleteFolder(ctx context.Context, owner, folderID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.notes.ClearFolder(ctx, owner, folderID); err != nil {
			return err
		}
		if err := s.folders.DetachChildren(ctx, owner, folderID); err != nil {
			return err
		}
		return s.folders.Delete(ctx, owner, folderID)
	})
}

// ---------------------------------------------------------------------------
// Tags
// ---------------------------------------------------------------------------

func (s *Source) InsertTag(ctx context.Context, t domain.Tag) error {
	return s.tags.Insert(ctx, t)
}

// DeleteTag removes the tag's links and then the tag.
func (s *Source) DeleteTag(ctx context.Context, owner, tagID uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.links.UnlinkTag(ctx, owner, tagID); err != nil {
			return err
		}
		return s.tags.Delete(ctx, owner, tagID)
	})
}

func (s *Source) LinkTag(ctx context.Context, owner, noteID, tagID uuid.UUID) error {
	return s.links.Link(ctx, owner, noteID, tagID)
}

func (s *Source) UnlinkTag(ctx context.Context, owner, noteID, tagID uuid.UUID) error {
	return s.links.Unlink(ctx, owner, noteID, tagID)
}

// ---------------------------------------------------------------------------
// Changes
// ---------------------------------------------------------------------------

// Subscribe listens for changes to owner's rows in table and returns a
// function that cancels the subscription.
func (s *Source) Subscribe(ctx context.Context, owner uuid.UUID, table domain.Table, onChange func(context.Context, domain.ChangeEvent)) (func(), error) {
	sub, err := s.feed.Subscribe(ctx, owner, table, onChange)
	if err != nil {
		return nil, err
	}
	return sub.Close, nil
}
