package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionManager
}

func NewSessionHandler(sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Open returns the user's open session, creating one if needed. ?fresh=true always starts a new one.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var (
		s   *domain.GenesisSession
		err error
	)
	if r.URL.Query().Get("fresh") == "true" {
		s, err = h.sessions.CreateSession(r.Context(), userID)
	} else {
		s, err = h.sessions.GetOrCreateSession(r.Context(), userID)
	}
	if err != nil {
		writeServiceError(w, err, "failed to open session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.sessions.GetProgress(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err, "failed to get progress")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type nextProbeResponse struct {
	Probe   *domain.ProbePacket    `json:"probe"`
	Session *domain.GenesisSession `json:"session"`
}

// NextProbe returns the next probe. A null probe means the session is paused or has completed.
func (h *SessionHandler) NextProbe(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	probe, err := h.sessions.GetNextProbe(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, "failed to generate probe")
		return
	}
	s, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, nextProbeResponse{Probe: probe, Session: s})
}

// Respond applies a probe response and returns what it changed along with the next probe.
func (h *SessionHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var resp domain.ProbeResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if resp.ProbeID == "" {
		writeError(w, http.StatusBadRequest, "probe_id is required")
		return
	}

	result, err := h.sessions.ProcessResponse(r.Context(), chi.URLParam(r, "sessionID"), resp)
	if err != nil {
		writeServiceError(w, err, "failed to process response")
		return
	}
	if result.Updated == nil {
		result.Updated = []*domain.Hypothesis{}
	}
	if result.Confirmed == nil {
		result.Confirmed = []service.Confirmation{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Pause(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err, "failed to pause session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err, "failed to resume session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type completeRequest struct {
	Reason string `json:"reason"`
}

// Complete ends the session. The body is optional; the reason defaults to user_ended.
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.CompleteSession(r.Context(), chi.URLParam(r, "sessionID"), req.Reason)
	if err != nil {
		writeServiceError(w, err, "failed to complete session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}
