package rest

import (
	"net/http"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

type tagsResponse struct {
	Tags []domain.Tag `json:"tags"`
}

// ListTags handles GET /v1/tags.
func (h *NotesHandler) ListTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tagsResponse{Tags: h.store.State().Tags})
}

// CreateTag handles POST /v1/tags.
func (h *NotesHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.store.CreateTag(r.Context(), notes.CreateTagInput{Name: req.Name})
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// DeleteTag handles DELETE /v1/tags/{id}.
func (h *NotesHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if err := h.store.DeleteTag(r.Context(), id); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
