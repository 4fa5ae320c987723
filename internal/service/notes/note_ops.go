package notes

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// CreateNote creates a note with a client-side id, puts it first and makes
// it active.
func (s *Store) CreateNote(ctx context.Context, in CreateNoteInput) (domain.Note, error) {
	if err := in.Validate(); err != nil {
		return domain.Note{}, err
	}

	var created domain.Note
	_, err := s.update(ctx, func(owner uuid.UUID) ([]collection, error) {
		if in.FolderID != nil && indexOfFolder(s.state.Folders, *in.FolderID) < 0 {
			return nil, domain.NewValidationError("folder_id", "folder not found")
		}

		now := s.timestamp()
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = domain.DefaultNoteTitle
		}
		created = domain.Note{
			ID:        s.newID(),
			UserID:    owner,
			Title:     title,
			Content:   in.Content,
			FolderID:  cloneID(in.FolderID),
			CreatedAt: now,
			UpdatedAt: now,
		}

		s.state.Notes = slices.Insert(s.state.Notes, 0, created)
		s.state.ActiveNoteID = cloneID(&created.ID)
		return []collection{colNotes, colActive}, nil
	})
	if err != nil {
		return domain.Note{}, err
	}

	return created, s.push(ctx, "create note", func(ctx context.Context) error {
		return s.remote.InsertNote(ctx, created)
	})
}

// UpdateNote applies a partial update and bumps UpdatedAt. The note moves to
// the head of the list so notes stay ordered by recency.
func (s *Store) UpdateNote(ctx context.Context, in UpdateNoteInput) (domain.Note, error) {
	if err := in.Validate(); err != nil {
		return domain.Note{}, err
	}

	var updated domain.Note
	_, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		idx := indexOfNote(s.state.Notes, in.NoteID)
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		if in.FolderID != nil && *in.FolderID != uuid.Nil && indexOfFolder(s.state.Folders, *in.FolderID) < 0 {
			return nil, domain.NewValidationError("folder_id", "folder not found")
		}

		updated = in.Patch().Apply(s.state.Notes[idx], s.timestamp())
		s.state.Notes = slices.Delete(s.state.Notes, idx, idx+1)
		s.state.Notes = slices.Insert(s.state.Notes, 0, updated)
		return []collection{colNotes}, nil
	})
	if err != nil {
		return domain.Note{}, err
	}

	return updated, s.push(ctx, "update note", func(ctx context.Context) error {
		return s.remote.UpdateNote(ctx, updated)
	})
}

// DeleteNote removes a note and its tag links. When it was active the first
// remaining note becomes active. The remote delete is issued even when the
// note is not held locally.
func (s *Store) DeleteNote(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return domain.NewValidationError("note_id", "required")
	}

	owner, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		changed := make([]collection, 0, 3)

		if idx := indexOfNote(s.state.Notes, id); idx >= 0 {
			s.state.Notes = slices.Delete(s.state.Notes, idx, idx+1)
			changed = append(changed, colNotes)
		}

		before := len(s.state.NoteTags)
		s.state.NoteTags = slices.DeleteFunc(s.state.NoteTags, func(nt domain.NoteTag) bool {
			return nt.NoteID == id
		})
		if len(s.state.NoteTags) != before {
			changed = append(changed, colNoteTags)
		}

		if s.state.ActiveNoteID != nil && *s.state.ActiveNoteID == id {
			s.state.ActiveNoteID = firstNoteID(s.state.Notes)
			changed = append(changed, colActive)
		}
		return changed, nil
	})
	if err != nil {
		return err
	}

	return s.push(ctx, "delete note", func(ctx context.Context) error {
		return s.remote.DeleteNote(ctx, owner, id)
	})
}

// AddTagToNote links a tag to a note. Linking an existing pair is a no-op.
func (s *Store) AddTagToNote(ctx context.Context, noteID, tagID uuid.UUID) error {
	linked := false
	owner, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		if indexOfNote(s.state.Notes, noteID) < 0 || indexOfTag(s.state.Tags, tagID) < 0 {
			return nil, domain.ErrNotFound
		}
		link := domain.NoteTag{NoteID: noteID, TagID: tagID}
		if slices.Contains(s.state.NoteTags, link) {
			return nil, nil
		}
		s.state.NoteTags = append(s.state.NoteTags, link)
		linked = true
		return []collection{colNoteTags}, nil
	})
	if err != nil || !linked {
		return err
	}

	return s.push(ctx, "link tag", func(ctx context.Context) error {
		return s.remote.LinkTag(ctx, owner, noteID, tagID)
	})
}

// RemoveTagFromNote unlinks a tag from a note.
func (s *Store) RemoveTagFromNote(ctx context.Context, noteID, tagID uuid.UUID) error {
	owner, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		link := domain.NoteTag{NoteID: noteID, TagID: tagID}
		before := len(s.state.NoteTags)
		s.state.NoteTags = slices.DeleteFunc(s.state.NoteTags, func(nt domain.NoteTag) bool {
			return nt == link
		})
		if len(s.state.NoteTags) == before {
			return nil, nil
		}
		return []collection{colNoteTags}, nil
	})
	if err != nil {
		return err
	}

	return s.push(ctx, "unlink tag", func(ctx context.Context) error {
		return s.remote.UnlinkTag(ctx, owner, noteID, tagID)
	})
}
