package notes

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// CreateFolder creates a folder, optionally nested under ParentID.
func (s *Store) CreateFolder(ctx context.Context, in CreateFolderInput) (domain.Folder, error) {
	if err := in.Validate(); err != nil {
		return domain.Folder{}, err
	}

	var created domain.Folder
	_, err := s.update(ctx, func(owner uuid.UUID) ([]collection, error) {
		if in.ParentID != nil && indexOfFolder(s.state.Folders, *in.ParentID) < 0 {
			return nil, domain.NewValidationError("parent_id", "folder not found")
		}
		created = domain.Folder{
			ID:        s.newID(),
			UserID:    owner,
			Name:      strings.TrimSpace(in.Name),
			ParentID:  cloneID(in.ParentID),
			CreatedAt: s.timestamp(),
		}
		s.state.Folders = sortFolders(append(s.state.Folders, created))
		return []collection{colFolders}, nil
	})
	if err != nil {
		return domain.Folder{}, err
	}

	return created, s.push(ctx, "create folder", func(ctx context.Context) error {
		return s.remote.InsertFolder(ctx, created)
	})
}

// RenameFolder renames a folder.
func (s *Store) RenameFolder(ctx context.Context, id uuid.UUID, name string) error {
	if errs := appendNameErrors(nil, name); len(errs) > 0 {
		return &domain.ValidationError{Errors: errs}
	}
	name = strings.TrimSpace(name)

	owner, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		idx := indexOfFolder(s.state.Folders, id)
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		s.state.Folders[idx].Name = name
		s.state.Folders = sortFolders(s.state.Folders)
		return []collection{colFolders}, nil
	})
	if err != nil {
		return err
	}

	return s.push(ctx, "rename folder", func(ctx context.Context) error {
		return s.remote.RenameFolder(ctx, owner, id, name)
	})
}

// DeleteFolder removes a folder. Notes in it lose their folder and child
// folders move to the top level.
func (s *Store) DeleteFolder(ctx context.Context, id uuid.UUID) error {
	owner, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		idx := indexOfFolder(s.state.Folders, id)
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		s.state.Folders = slices.Delete(s.state.Folders, idx, idx+1)
		for i := range s.state.Folders {
			if p := s.state.Folders[i].ParentID; p != nil && *p == id {
				s.state.Folders[i].ParentID = nil
			}
		}

		changed := []collection{colFolders}
		moved := false
		for i := range s.state.Notes {
			if f := s.state.Notes[i].FolderID; f != nil && *f == id {
				s.state.Notes[i].FolderID = nil
				moved = true
			}
		}
		if moved {
			changed = append(changed, colNotes)
		}
		return changed, nil
	})
	if err != nil {
		return err
	}

	return s.push(ctx, "delete folder", func(ctx context.Context) error {
		return s.remote.DeleteFolder(ctx, owner, id)
	})
}

func indexOfFolder(folders []domain.Folder, id uuid.UUID) int {
	return slices.IndexFunc(folders, func(f domain.Folder) bool { return f.ID == id })
}
