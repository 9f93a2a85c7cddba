// Package api provides HTTP handlers for the deliberation API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/conclave/internal/deliberation"
	"github.com/ashureev/conclave/internal/domain"
	"github.com/ashureev/conclave/internal/events"
	"github.com/ashureev/conclave/internal/roster"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the inbound deliberation operations over REST.
type Handler struct {
	mgr *deliberation.Manager
}

// NewHandler creates a new Handler.
func NewHandler(mgr *deliberation.Manager) *Handler {
	return &Handler{mgr: mgr}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers the deliberation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/agents", h.ListAgents)
	r.Get("/api/phases", h.ListPhases)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.JoinSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/stop", h.StopSession)
			r.Post("/messages", h.SubmitMessage)
			r.Post("/escalations/{escalationID}/answer", h.AnswerEscalation)
			r.Get("/export", h.Export)
		})
	})
}

// ListAgents enumerates the fixed cast in display order.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, roster.All())
}

// ListPhases enumerates the phase plan in execution order.
func (h *Handler) ListPhases(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, roster.Phases())
}

type createSessionRequest struct {
	Problem string           `json:"problem"`
	Files   []domain.FileRef `json:"files,omitempty"`
}

// CreateSession starts a new deliberation and returns immediately with
// the session record.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.mgr.CreateSession(r.Context(), req.Problem, req.Files)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			Error(w, http.StatusNotFound, err.Error())
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// JoinSession returns the full materialized session state.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.mgr.JoinSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// StopSession requests an early stop.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.StopSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeOperationError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// DeleteSession removes a session and all of its records.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeOperationError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type submitMessageRequest struct {
	Content string `json:"content"`
}

// SubmitMessage appends a human interjection.
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.mgr.SubmitHumanMessage(r.Context(), chi.URLParam(r, "sessionID"), req.Content); err != nil {
		writeOperationError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// AnswerEscalation records a human answer to a pending escalation.
func (h *Handler) AnswerEscalation(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.mgr.SubmitEscalationAnswer(r.Context(),
		chi.URLParam(r, "sessionID"), chi.URLParam(r, "escalationID"), req.Answer)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

type exportResponse struct {
	Snapshot *domain.Snapshot     `json:"snapshot"`
	Summary  events.ExportSummary `json:"summary"`
}

// Export returns the snapshot plus the export-readiness summary, the
// payload consumed by document formatting.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	snap, err := h.mgr.JoinSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	JSON(w, http.StatusOK, exportResponse{
		Snapshot: snap,
		Summary:  deliberation.Summarize(snap),
	})
}

// writeOperationError maps the domain failure taxonomy onto status
// codes: unknown ids are 404, rejected transitions 409, everything
// else a 400-level validation failure.
func writeOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownSession), errors.Is(err, domain.ErrUnknownEscalation):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyAnswered):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusBadRequest, err.Error())
	}
}
