package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/command"
	"github.com/heartmarshall/notetaken-sync/internal/service/notes"
	"github.com/heartmarshall/notetaken-sync/internal/service/syncer"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 2 << 20

// Note list paging.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type noteStore interface {
	State() notes.State
	Init(ctx context.Context, owner uuid.UUID) error
	Refresh(ctx context.Context) error
	LoadMoreNotes(ctx context.Context) error
	Reset(ctx context.Context) error

	CreateNote(ctx context.Context, in notes.CreateNoteInput) (domain.Note, error)
	UpdateNote(ctx context.Context, in notes.UpdateNoteInput) (domain.Note, error)
	DeleteNote(ctx context.Context, id uuid.UUID) error
	AddTagToNote(ctx context.Context, noteID, tagID uuid.UUID) error
	RemoveTagFromNote(ctx context.Context, noteID, tagID uuid.UUID) error

	CreateFolder(ctx context.Context, in notes.CreateFolderInput) (domain.Folder, error)
	RenameFolder(ctx context.Context, id uuid.UUID, name string) error
	DeleteFolder(ctx context.Context, id uuid.UUID) error
	CreateTag(ctx context.Context, in notes.CreateTagInput) (domain.Tag, error)
	DeleteTag(ctx context.Context, id uuid.UUID) error

	SetActiveNote(ctx context.Context, id *uuid.UUID) error
	SetSelectedTag(id *uuid.UUID)
	SetSearch(search string)
	VisibleNotes() []domain.Note
}

type planExecutor interface {
	Execute(ctx context.Context, plan *command.Plan) (*command.Result, error)
}

// NotesHandler serves the note, folder, tag, selection, sync, session and
// command endpoints.
type NotesHandler struct {
	store    noteStore
	commands planExecutor
	log      *slog.Logger
}

// NewNotesHandler creates a NotesHandler.
func NewNotesHandler(store noteStore, commands planExecutor, logger *slog.Logger) *NotesHandler {
	return &NotesHandler{
		store:    store,
		commands: commands,
		log:      logger.With("handler", "notes"),
	}
}

// notesResponse is the body of the notes and sync endpoints. HasMore reports
// older notes still on the remote; NextCursor is set when the listing itself
// was cut at the limit.
type notesResponse struct {
	Notes      []domain.Note `json:"notes"`
	HasMore    bool          `json:"has_more"`
	NextCursor *time.Time    `json:"next_cursor,omitempty"`
}

// noteResponse is a single note with its tags.
type noteResponse struct {
	domain.Note
	Tags []domain.Tag `json:"tags"`
}

// sessionResponse is the body of PUT /v1/session.
type sessionResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Notes   int       `json:"notes"`
	Offline bool      `json:"offline"`
	Error   string    `json:"error,omitempty"`
}

type commandResponse struct {
	*command.Result
	Error string `json:"error,omitempty"`
	OpIdx *int   `json:"failed_op,omitempty"`
}

// ListNotes handles GET /v1/notes?search=&tag_id=&folder_id=&limit=&cursor=.
// Notes come newest first. cursor is the updated_at of the last note of the
// previous page; only notes strictly older are returned.
func (h *NotesHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	st := h.store.State()
	found := notes.FilterNotes(st.Notes, st.NoteTags, q.tagID, q.search)
	found = slices.DeleteFunc(found, func(n domain.Note) bool {
		if q.folderID != nil && (n.FolderID == nil || *n.FolderID != *q.folderID) {
			return true
		}
		return q.cursor != nil && !n.UpdatedAt.Before(*q.cursor)
	})

	resp := notesResponse{Notes: found, HasMore: st.HasMore}
	if len(found) > q.limit {
		resp.Notes = found[:q.limit]
		last := resp.Notes[q.limit-1].UpdatedAt
		resp.NextCursor = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

type listQuery struct {
	search   string
	tagID    *uuid.UUID
	folderID *uuid.UUID
	cursor   *time.Time
	limit    int
}

func parseListQuery(r *http.Request) (listQuery, error) {
	q := r.URL.Query()
	out := listQuery{search: q.Get("search"), limit: defaultListLimit}

	var errs []domain.FieldError
	for _, f := range []struct {
		name string
		dst  **uuid.UUID
	}{{"tag_id", &out.tagID}, {"folder_id", &out.folderID}} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: f.name, Message: "invalid uuid"})
			continue
		}
		*f.dst = &id
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			errs = append(errs, domain.FieldError{Field: "limit", Message: "must be between 1 and 200"})
		} else {
			out.limit = n
		}
	}
	if raw := q.Get("cursor"); raw != "" {
		c, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "cursor", Message: "must be an RFC 3339 timestamp"})
		} else {
			out.cursor = &c
		}
	}

	if len(errs) > 0 {
		return out, domain.NewValidationErrors(errs)
	}
	return out, nil
}

// GetNote handles GET /v1/notes/{id}.
func (h *NotesHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	st := h.store.State()
	idx := slices.IndexFunc(st.Notes, func(n domain.Note) bool { return n.ID == id })
	if idx < 0 {
		handleError(w, r, h.log, domain.ErrNotFound)
		return
	}

	resp := noteResponse{Note: st.Notes[idx], Tags: []domain.Tag{}}
	for _, l := range st.NoteTags {
		if l.NoteID != id {
			continue
		}
		if t := slices.IndexFunc(st.Tags, func(t domain.Tag) bool { return t.ID == l.TagID }); t >= 0 {
			resp.Tags = append(resp.Tags, st.Tags[t])
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateNote handles POST /v1/notes.
func (h *NotesHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string     `json:"title"`
		Content  string     `json:"content"`
		FolderID *uuid.UUID `json:"folder_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.store.CreateNote(r.Context(), notes.CreateNoteInput{
		Title:    req.Title,
		Content:  req.Content,
		FolderID: req.FolderID,
	})
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNote handles PATCH /v1/notes/{id}. Omitted fields are left alone;
// "folder_id": null moves the note out of its folder.
func (h *NotesHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	var req struct {
		Title    *string    `json:"title"`
		Content  *string    `json:"content"`
		FolderID optionalID `json:"folder_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	in := notes.UpdateNoteInput{NoteID: id, Title: req.Title, Content: req.Content}
	if req.FolderID.Set {
		folder := uuid.Nil
		if req.FolderID.ID != nil {
			folder = *req.FolderID.ID
		}
		in.FolderID = &folder
	}

	n, err := h.store.UpdateNote(r.Context(), in)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /v1/notes/{id}.
func (h *NotesHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if err := h.store.DeleteNote(r.Context(), id); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TagNote handles POST /v1/notes/{id}/tags/{tag_id}.
func (h *NotesHandler) TagNote(w http.ResponseWriter, r *http.Request) {
	h.noteTag(w, r, h.store.AddTagToNote)
}

// UntagNote handles DELETE /v1/notes/{id}/tags/{tag_id}.
func (h *NotesHandler) UntagNote(w http.ResponseWriter, r *http.Request) {
	h.noteTag(w, r, h.store.RemoveTagFromNote)
}

func (h *NotesHandler) noteTag(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, noteID, tagID uuid.UUID) error) {
	noteID, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	tagID, err := pathID(r, "tag_id")
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if err := op(r.Context(), noteID, tagID); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /v1/sync/refresh.
func (h *NotesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Refresh(r.Context()); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	h.writeNotes(w)
}

// LoadMore handles POST /v1/sync/more.
func (h *NotesHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	if err := h.store.LoadMoreNotes(r.Context()); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	h.writeNotes(w)
}

func (h *NotesHandler) writeNotes(w http.ResponseWriter) {
	st := h.store.State()
	writeJSON(w, http.StatusOK, notesResponse{Notes: st.Notes, HasMore: st.HasMore})
}

// SignIn handles PUT /v1/session. Switching to another account signs the
// current one out first. A failed first sync still starts the session from
// the cache and is reported as offline.
func (h *NotesHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, err := uuid.Parse(req.UserID)
	if err != nil || owner == uuid.Nil {
		handleError(w, r, h.log, domain.NewValidationError("user_id", "invalid uuid"))
		return
	}

	ctx := r.Context()
	if cur := h.store.State().Owner; cur != uuid.Nil && cur != owner {
		if err := h.store.Reset(ctx); err != nil {
			handleError(w, r, h.log, err)
			return
		}
	}

	resp := sessionResponse{UserID: owner}
	if err := h.store.Init(ctx, owner); err != nil {
		if errors.Is(err, syncer.ErrSessionActive) ||
			errors.Is(err, syncer.ErrStaleSession) ||
			errors.Is(err, syncer.ErrDisconnected) ||
			errors.Is(err, domain.ErrValidation) {
			handleError(w, r, h.log, err)
			return
		}
		h.log.WarnContext(ctx, "signed in offline", slog.String("error", err.Error()))
		resp.Offline = true
		resp.Error = err.Error()
	}
	resp.Notes = len(h.store.State().Notes)
	writeJSON(w, http.StatusOK, resp)
}

// SignOut handles DELETE /v1/session.
func (h *NotesHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		handleError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteCommand handles POST /v1/commands. The body is a raw plan,
// optionally wrapped in a Markdown code fence. When an operation fails the
// response carries the operations applied before it.
func (h *NotesHandler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	plan, err := command.ParsePlan(body)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	result, err := h.commands.Execute(r.Context(), plan)
	if err == nil {
		writeJSON(w, http.StatusOK, commandResponse{Result: result})
		return
	}

	var opErr *command.OpError
	if result == nil || !errors.As(err, &opErr) {
		handleError(w, r, h.log, err)
		return
	}
	status, errBody := statusOf(opErr.Err)
	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "command failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, commandResponse{Result: result, Error: errBody.Error, OpIdx: &opErr.Index})
}
