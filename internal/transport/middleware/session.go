package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/pkg/ctxutil"
)

// Session stores the signed-in account, if any, in the request context.
// owner returns uuid.Nil while signed out.
func Session(owner func() uuid.UUID) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := owner(); id != uuid.Nil {
				r = r.WithContext(ctxutil.WithOwner(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects requests made while signed out with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ctxutil.OwnerFromCtx(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"not signed in"}`)) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
