package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/richtext"
	"github.com/starford/feathernotes/internal/search"
	"github.com/starford/feathernotes/internal/session"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// readJSON decodes the request body into v and validates it when v
// implements validation.Validatable. It writes the 400 itself and reports
// whether the handler may continue.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if vv, ok := v.(validation.Validatable); ok {
		if err := vv.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return false
		}
	}
	return true
}

// writeError maps domain errors onto status codes. Anything unknown is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	var ioErr *apperr.IOError
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrStaleHandle), errors.Is(err, richtext.ErrNoImage):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrCancelled), errors.Is(err, session.ErrNoDocument):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidPosition), errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, richtext.ErrScale), errors.Is(err, session.ErrNoPath), errors.Is(err, session.ErrNotDocument):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrAuth):
		writeJSON(w, http.StatusUnauthorized, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrMalformedDocument):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.As(err, &ioErr):
		slog.Error(op+" failed", slog.String("path", ioErr.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("cannot access "+ioErr.Path))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
