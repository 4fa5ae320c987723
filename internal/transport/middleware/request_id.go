package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/pkg/ctxutil"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// RequestID reuses the caller's request id or generates one, and stores it
// in the context and the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctxutil.WithRequestID(r.Context(), id)))
	})
}
