package rest

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
)

// selectionResponse is the UI selection and the notes it leaves visible.
type selectionResponse struct {
	ActiveNoteID *uuid.UUID    `json:"active_note_id"`
	TagID        *uuid.UUID    `json:"tag_id"`
	Search       string        `json:"search"`
	Notes        []domain.Note `json:"notes"`
}

// GetSelection handles GET /v1/selection.
func (h *NotesHandler) GetSelection(w http.ResponseWriter, _ *http.Request) {
	h.writeSelection(w)
}

// UpdateSelection handles PUT /v1/selection. Omitted fields are left alone;
// null clears an id.
func (h *NotesHandler) UpdateSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActiveNoteID optionalID `json:"active_note_id"`
		TagID        optionalID `json:"tag_id"`
		Search       *string    `json:"search"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.ActiveNoteID.Set {
		if err := h.store.SetActiveNote(r.Context(), req.ActiveNoteID.ID); err != nil {
			handleError(w, r, h.log, err)
			return
		}
	}
	if req.TagID.Set {
		h.store.SetSelectedTag(req.TagID.ID)
	}
	if req.Search != nil {
		h.store.SetSearch(*req.Search)
	}
	h.writeSelection(w)
}

func (h *NotesHandler) writeSelection(w http.ResponseWriter) {
	st := h.store.State()
	writeJSON(w, http.StatusOK, selectionResponse{
		ActiveNoteID: st.ActiveNoteID,
		TagID:        st.SelectedTagID,
		Search:       st.Search,
		Notes:        h.store.VisibleNotes(),
	})
}
