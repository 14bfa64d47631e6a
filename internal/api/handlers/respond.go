package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/genesis/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto a status code. Unknown errors are reported as fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrProbeNotFound),
		errors.Is(err, service.ErrHypothesisNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidDeclaration),
		errors.Is(err, service.ErrInvalidResponse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProbeExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrProbeAlreadyAnswered),
		errors.Is(err, service.ErrSessionComplete),
		errors.Is(err, service.ErrSessionState),
		errors.Is(err, service.ErrNotProbeable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
