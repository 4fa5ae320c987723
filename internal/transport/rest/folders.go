package rest

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
)

type foldersResponse struct {
	Folders []domain.Folder `json:"folders"`
}

// ListFolders handles GET /v1/folders. Folders come sorted by name.
func (h *NotesHandler) ListFolders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, foldersResponse{Folders: h.store.State().Folders})
}

// CreateFolder handles POST /v1/folders.
func (h *NotesHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string     `json:"name"`
		ParentID *uuid.UUID `json:"parent_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	f, err := h.store.CreateFolder(r.Context(), notes.CreateFolderInput{Name: req.Name, ParentID: req.ParentID})
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// RenameFolder handles PATCH /v1/folders/{id}.
func (h *NotesHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.store.RenameFolder(r.Context(), id, req.Name); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFolder handles DELETE /v1/folders/{id}. Its notes and subfolders
// move to the top level.
func (h *NotesHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if err := h.store.DeleteFolder(r.Context(), id); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
