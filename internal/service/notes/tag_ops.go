package notes

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// CreateTag creates a tag.
func (s *Store) CreateTag(ctx context.Context, in CreateTagInput) (domain.Tag, error) {
	if err := in.Validate(); err != nil {
		return domain.Tag{}, err
	}

	var created domain.Tag
	_, err := s.update(ctx, func(owner uuid.UUID) ([]collection, error) {
		created = domain.Tag{ID: s.newID(), UserID: owner, Name: strings.TrimSpace(in.Name)}
		s.state.Tags = sortTags(append(s.state.Tags, created))
		return []collection{colTags}, nil
	})
	if err != nil {
		return domain.Tag{}, err
	}

	return created, s.push(ctx, "create tag", func(ctx context.Context) error {
		return s.remote.InsertTag(ctx, created)
	})
}

// DeleteTag removes a tag and its links. A tag filter on it is cleared.
func (s *Store) DeleteTag(ctx context.Context, id uuid.UUID) error {
	owner, err := s.update(ctx, func(uuid.UUID) ([]collection, error) {
		idx := indexOfTag(s.state.Tags, id)
		if idx < 0 {
			return nil, domain.ErrNotFound
		}
		s.state.Tags = slices.Delete(s.state.Tags, idx, idx+1)
		s.state.NoteTags = slices.DeleteFunc(s.state.NoteTags, func(nt domain.NoteTag) bool {
			return nt.TagID == id
		})
		if s.state.SelectedTagID != nil && *s.state.SelectedTagID == id {
			s.state.SelectedTagID = nil
		}
		return []collection{colTags, colNoteTags}, nil
	})
	if err != nil {
		return err
	}

	return s.push(ctx, "delete tag", func(ctx context.Context) error {
		return s.remote.DeleteTag(ctx, owner, id)
	})
}

func indexOfTag(tags []domain.Tag, id uuid.UUID) int {
	return slices.IndexFunc(tags, func(t domain.Tag) bool { return t.ID == id })
}
