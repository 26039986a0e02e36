package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"delivro/internal/auth"
	"delivro/models"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encode response")
	}
}

// writeError maps domain errors onto HTTP status codes. Anything the
// taxonomy does not name is a 500 and gets logged; client errors are the
// caller's problem and only reach the log at debug level.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		status = http.StatusForbidden
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case models.IsNotFound(err):
		status = http.StatusNotFound
	case models.IsInvalidTransition(err):
		status = http.StatusUnprocessableEntity
	case models.IsConflict(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("internal error")
		s.writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	s.log.WithError(err).Debug("request rejected")
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Validationf("invalid request body: %v", err)
	}
	return nil
}
