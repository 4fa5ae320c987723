package notes

import (
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

const (
	maxNameLength  = 200
	maxTitleLength = 500
)

// CreateNoteInput holds the parameters for creating a note.
type CreateNoteInput struct {
	Title    string
	Content  string
	FolderID *uuid.UUID
}

// Validate checks all fields and collects all errors.
func (i CreateNoteInput) Validate() error {
	var errs []domain.FieldError

	if len(strings.TrimSpace(i.Title)) > maxTitleLength {
		errs = append(errs, domain.FieldError{Field: "title", Message: "max 500 characters"})
	}
	if i.FolderID != nil && *i.FolderID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "folder_id", Message: "invalid"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// UpdateNoteInput holds a partial note update. FolderID pointing at uuid.Nil
// moves the note out of its folder.
type UpdateNoteInput struct {
	NoteID   uuid.UUID
	Title    *string
	Content  *string
	FolderID *uuid.UUID
}

// Validate checks all fields and collects all errors.
func (i UpdateNoteInput) Validate() error {
	var errs []domain.FieldError

	if i.NoteID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "note_id", Message: "required"})
	}
	if i.Title == nil && i.Content == nil && i.FolderID == nil {
		errs = append(errs, domain.FieldError{Field: "input", Message: "at least one field must be provided"})
	}
	if i.Title != nil && len(strings.TrimSpace(*i.Title)) > maxTitleLength {
		errs = append(errs, domain.FieldError{Field: "title", Message: "max 500 characters"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// Patch converts the input to a domain patch.
func (i UpdateNoteInput) Patch() domain.NotePatch {
	return domain.NotePatch{Title: i.Title, Content: i.Content, FolderID: i.FolderID}
}

// CreateFolderInput holds the parameters for creating a folder.
type CreateFolderInput struct {
	Name     string
	ParentID *uuid.UUID
}

// Validate checks all fields and collects all errors.
func (i CreateFolderInput) Validate() error {
	var errs []domain.FieldError

	errs = appendNameErrors(errs, i.Name)
	if i.ParentID != nil && *i.ParentID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "parent_id", Message: "invalid"})
	}

	if len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

// CreateTagInput holds the parameters for creating a tag.
type CreateTagInput struct {
	Name string
}

// Validate checks all fields and collects all errors.
func (i CreateTagInput) Validate() error {
	if errs := appendNameErrors(nil, i.Name); len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	return nil
}

func appendNameErrors(errs []domain.FieldError, name string) []domain.FieldError {
	name = strings.TrimSpace(name)
	if name == "" {
		return append(errs, domain.FieldError{Field: "name", Message: "required"})
	}
	if len(name) > maxNameLength {
		return append(errs, domain.FieldError{Field: "name", Message: "max 200 characters"})
	}
	return errs
}
