package rest

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/transport/middleware"
)

// Routes holds the handlers mounted by NewRouter.
type Routes struct {
	Health *HealthHandler
	Notes  *NotesHandler
	Events http.Handler
	// Owner reports the signed-in account, uuid.Nil when signed out.
	Owner func() uuid.UUID
}

// NewRouter mounts every endpoint behind the common middleware chain.
func NewRouter(routes Routes, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", routes.Health.Live)
	mux.HandleFunc("GET /ready", routes.Health.Ready)
	mux.HandleFunc("GET /health", routes.Health.Health)

	signedIn := func(h http.HandlerFunc) http.Handler { return middleware.RequireSession(h) }

	mux.Handle("GET /v1/notes", signedIn(routes.Notes.ListNotes))
	mux.Handle("POST /v1/notes", signedIn(routes.Notes.CreateNote))
	mux.Handle("GET /v1/notes/{id}", signedIn(routes.Notes.GetNote))
	mux.Handle("PATCH /v1/notes/{id}", signedIn(routes.Notes.UpdateNote))
	mux.Handle("DELETE /v1/notes/{id}", signedIn(routes.Notes.DeleteNote))
	mux.Handle("POST /v1/notes/{id}/tags/{tag_id}", signedIn(routes.Notes.TagNote))
	mux.Handle("DELETE /v1/notes/{id}/tags/{tag_id}", signedIn(routes.Notes.UntagNote))

	mux.Handle("GET /v1/folders", signedIn(routes.Notes.ListFolders))
	mux.Handle("POST /v1/folders", signedIn(routes.Notes.CreateFolder))
	mux.Handle("PATCH /v1/folders/{id}", signedIn(routes.Notes.RenameFolder))
	mux.Handle("DELETE /v1/folders/{id}", signedIn(routes.Notes.DeleteFolder))

	mux.Handle("GET /v1/tags", signedIn(routes.Notes.ListTags))
	mux.Handle("POST /v1/tags", signedIn(routes.Notes.CreateTag))
	mux.Handle("DELETE /v1/tags/{id}", signedIn(routes.Notes.DeleteTag))

	mux.Handle("GET /v1/selection", signedIn(routes.Notes.GetSelection))
	mux.Handle("PUT /v1/selection", signedIn(routes.Notes.UpdateSelection))

	mux.Handle("POST /v1/sync/refresh", signedIn(routes.Notes.Refresh))
	mux.Handle("POST /v1/sync/more", signedIn(routes.Notes.LoadMore))
	mux.Handle("POST /v1/commands", signedIn(routes.Notes.ExecuteCommand))
	mux.HandleFunc("PUT /v1/session", routes.Notes.SignIn)
	mux.HandleFunc("DELETE /v1/session", routes.Notes.SignOut)
	if routes.Events != nil {
		mux.Handle("GET /v1/events", routes.Events)
	}

	return middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Session(routes.Owner),
		middleware.Logger(logger),
	)(mux)
}
