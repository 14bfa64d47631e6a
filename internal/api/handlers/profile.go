package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Harshitk-cp/genesis/internal/domain"
)

type ProfileHandler struct {
	reader domain.ProfileReader
}

// NewProfileHandler serves profile completion state. A nil reader reports no tracked fields.
func NewProfileHandler(reader domain.ProfileReader) *ProfileHandler {
	return &ProfileHandler{reader: reader}
}

// List returns the user's uncertain and resolved profile fields.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	fields := []domain.ProfileField{}
	if h.reader != nil {
		found, err := h.reader.ProfileFields(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeServiceError(w, err, "failed to list profile fields")
			return
		}
		fields = append(fields, found...)
	}

	resolved := 0
	for _, f := range fields {
		if f.Status == domain.FieldStatusResolved {
			resolved++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fields":   fields,
		"count":    len(fields),
		"resolved": resolved,
	})
}
