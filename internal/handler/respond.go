package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mailkite/mailkite/internal/apperrors"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps application errors onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	var (
		notFound   *apperrors.NotFoundError
		state      *apperrors.StateError
		validation *apperrors.ValidationError
		inUse      *apperrors.TemplateInUseError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &state):
		status = http.StatusConflict
	case errors.As(err, &inUse):
		status = http.StatusConflict
	case errors.As(err, &validation):
		status = http.StatusUnprocessableEntity
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func urlID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// userID reads the acting user from the X-User-ID header. Authentication is
// handled upstream; a missing header falls back to user 1 for local use.
func userID(r *http.Request) int64 {
	if v := r.Header.Get("X-User-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 1
}
