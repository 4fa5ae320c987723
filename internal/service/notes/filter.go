package notes

import (
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// FilterNotes keeps the notes linked to tagID (when set) whose title or
// content contains search, case-insensitively. Order is preserved.
func FilterNotes(notes []domain.Note, links []domain.NoteTag, tagID *uuid.UUID, search string) []domain.Note {
	var tagged map[uuid.UUID]struct{}
	if tagID != nil {
		tagged = make(map[uuid.UUID]struct{})
		for _, l := range links {
			if l.TagID == *tagID {
				tagged[l.NoteID] = struct{}{}
			}
		}
	}
	needle := strings.ToLower(strings.TrimSpace(search))

	out := make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		if tagged != nil {
			if _, ok := tagged[n.ID]; !ok {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(n.Title), needle) &&
			!strings.Contains(strings.ToLower(n.Content), needle) {
			continue
		}
		out = append(out, n)
	}
	return out
}
