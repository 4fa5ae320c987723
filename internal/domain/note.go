package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultNoteTitle is used when a note is created with a blank title.
const DefaultNoteTitle = "Untitled"

// Note is a single markdown document owned by one account.
// ID is generated by the creating client, never by the server.
type Note struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	FolderID  *uuid.UUID `json:"folder_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"` // conflict-resolution key
}

// Folder groups notes. ParentID allows nesting.
type Folder struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Name      string     `json:"name"`
	ParentID  *uuid.UUID `json:"parent_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// Tag is a user-defined label.
type Tag struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

// NoteTag links a note to a tag. The pair is its identity.
type NoteTag struct {
	NoteID uuid.UUID `json:"note_id"`
	TagID  uuid.UUID `json:"tag_id"`
}

// NotePatch is a partial note update. Nil fields are left unchanged.
// FolderID pointing at uuid.Nil clears the folder.
type NotePatch struct {
	Title    *string
	Content  *string
	FolderID *uuid.UUID
}

// Apply returns a copy of n with the patch applied and UpdatedAt set to now.
func (p NotePatch) Apply(n Note, now time.Time) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.FolderID != nil {
		if *p.FolderID == uuid.Nil {
			n.FolderID = nil
		} else {
			id := *p.FolderID
			n.FolderID = &id
		}
	}
	n.UpdatedAt = now
	return n
}

// Dataset is the full set of synced collections of one account.
type Dataset struct {
	Notes    []Note    `json:"notes"`
	Folders  []Folder  `json:"folders"`
	Tags     []Tag     `json:"tags"`
	NoteTags []NoteTag `json:"note_tags"`
}
