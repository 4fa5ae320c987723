package domain

import "github.com/google/uuid"

// Table names a remote table that emits change events.
type Table string

const (
	TableNotes    Table = "notes"
	TableFolders  Table = "folders"
	TableTags     Table = "tags"
	TableNoteTags Table = "note_tags"
)

func (t Table) String() string { return string(t) }

func (t Table) IsValid() bool {
	switch t {
	case TableNotes, TableFolders, TableTags, TableNoteTags:
		return true
	}
	return false
}

// HasOwner reports whether rows of the table carry a user_id column.
// note_tags does not, so its events cannot be filtered by owner.
func (t Table) HasOwner() bool {
	return t != TableNoteTags
}

// ChangeOp is the kind of row change carried by a ChangeEvent.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent is a push notification about one changed row.
// UserID is uuid.Nil for tables without an owner column.
type ChangeEvent struct {
	Table  Table     `json:"table"`
	Op     ChangeOp  `json:"op"`
	UserID uuid.UUID `json:"user_id"`
	ID     uuid.UUID `json:"id"`
	NoteID uuid.UUID `json:"note_id"`
	TagID  uuid.UUID `json:"tag_id"`
}
