package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/notetaken-sync/internal/domain"
	"github.com/heartmarshall/notetaken-sync/internal/service/syncer"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusOf maps a service error to its HTTP status and client message.
// Unknown errors map to 500 with a generic message.
func statusOf(err error) (int, errorResponse) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: ve.Error(), Fields: ve.Errors}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, syncer.ErrDisconnected):
		return http.StatusUnauthorized, errorResponse{Error: "not signed in"}
	case errors.Is(err, syncer.ErrSessionActive):
		return http.StatusConflict, errorResponse{Error: "another account is signed in"}
	case errors.Is(err, syncer.ErrStaleSession):
		return http.StatusConflict, errorResponse{Error: "session changed"}
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Error: "conflict"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

func handleError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, body := statusOf(err)
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "internal error", slog.String("error", err.Error()))
	}
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON request body into v. It writes the 400 response
// itself and reports false when the body cannot be decoded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses the named path segment as a non-nil uuid.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.NewValidationError(name, "invalid uuid")
	}
	return id, nil
}

// optionalID is a JSON id field that tells "absent" apart from null.
// Set is false when the field is missing; ID is nil when it was null.
type optionalID struct {
	Set bool
	ID  *uuid.UUID
}

func (o *optionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.ID = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.ID = &id
	return nil
}
