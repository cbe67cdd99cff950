package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/services"
)

// QuestionnairePayload is the request body of create and update.
type QuestionnairePayload struct {
	Data   map[string]any `json:"data"`
	Status string         `json:"status,omitempty"` // "draft" | "submitted"
}

// QuestionnaireRef identifies a stored version.
type QuestionnaireRef struct {
	ID         uuid.UUID `json:"id"`
	CaseNumber string    `json:"case_number"`
	Version    int       `json:"version"`
}

// FinalizeResponse is returned by POST /api/questionnaires/{id}/finalize.
type FinalizeResponse struct {
	OK bool `json:"ok"`
	QuestionnaireRef
}

// RedoResponse is returned by POST /api/questionnaires/{id}/redo.
type RedoResponse struct {
	QuestionnaireRef
	RedoOfID uuid.UUID `json:"redo_of_id"`
}

// DeleteResponse is returned by DELETE /api/questionnaires/{id}.
type DeleteResponse struct {
	OK bool      `json:"ok"`
	ID uuid.UUID `json:"id"`
}

// QuestionnaireHandler handles the questionnaire lifecycle endpoints.
type QuestionnaireHandler struct {
	service services.QuestionnaireService
	logger  *zap.Logger
}

// NewQuestionnaireHandler creates a new questionnaire handler.
func NewQuestionnaireHandler(service services.QuestionnaireService, logger *zap.Logger) *QuestionnaireHandler {
	return &QuestionnaireHandler{service: service, logger: logger}
}

// RegisterRoutes registers the questionnaire routes on the given mux.
// Every route requires a signed-in user.
func (h *QuestionnaireHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/questionnaires", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/questionnaires", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/questionnaires/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/questionnaires/{id}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("POST /api/questionnaires/{id}/finalize", authMiddleware.RequireAuth(h.Finalize))
	mux.HandleFunc("POST /api/questionnaires/{id}/redo", authMiddleware.RequireAuth(h.Redo))
	mux.HandleFunc("DELETE /api/questionnaires/{id}", authMiddleware.RequireAuth(h.Delete))
}

func refOf(q *models.Questionnaire) QuestionnaireRef {
	return QuestionnaireRef{ID: q.ID, CaseNumber: q.CaseNumber, Version: q.Version}
}

// Create handles POST /api/questionnaires
func (h *QuestionnaireHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req QuestionnairePayload
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	principal, _ := auth.GetPrincipal(r.Context())
	q, err := h.service.Create(r.Context(), req.Data, req.Status, principal)
	if err != nil {
		WriteServiceError(w, err, h.logger, "create questionnaire")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, refOf(q)); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// List handles GET /api/questionnaires
// With ?case_number= it returns that case's versions, oldest first.
func (h *QuestionnaireHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		items []models.QuestionnaireSummary
		err   error
	)
	if r.URL.Query().Has("case_number") {
		items, err = h.service.Versions(r.Context(), r.URL.Query().Get("case_number"))
	} else {
		items, err = h.service.List(r.Context())
	}
	if err != nil {
		WriteServiceError(w, err, h.logger, "list questionnaires")
		return
	}
	if items == nil {
		items = []models.QuestionnaireSummary{}
	}

	if err := WriteJSON(w, http.StatusOK, items); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Get handles GET /api/questionnaires/{id}
func (h *QuestionnaireHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseQuestionnaireID(w, r, h.logger)
	if !ok {
		return
	}

	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger, "get questionnaire")
		return
	}

	if err := WriteJSON(w, http.StatusOK, q); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Update handles PUT /api/questionnaires/{id}
func (h *QuestionnaireHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseQuestionnaireID(w, r, h.logger)
	if !ok {
		return
	}

	var req QuestionnairePayload
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	if err := h.service.Update(r.Context(), id, req.Data, req.Status); err != nil {
		WriteServiceError(w, err, h.logger, "update questionnaire")
		return
	}

	if err := WriteJSON(w, http.StatusOK, OKResponse{OK: true}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Finalize handles POST /api/questionnaires/{id}/finalize
func (h *QuestionnaireHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseQuestionnaireID(w, r, h.logger)
	if !ok {
		return
	}

	q, err := h.service.Finalize(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err, h.logger, "finalize questionnaire")
		return
	}

	if err := WriteJSON(w, http.StatusOK, FinalizeResponse{OK: true, QuestionnaireRef: refOf(q)}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Redo handles POST /api/questionnaires/{id}/redo
// The new draft is owned by the caller.
func (h *QuestionnaireHandler) Redo(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseQuestionnaireID(w, r, h.logger)
	if !ok {
		return
	}

	principal, _ := auth.GetPrincipal(r.Context())
	q, err := h.service.Redo(r.Context(), id, principal)
	if err != nil {
		WriteServiceError(w, err, h.logger, "redo questionnaire")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, RedoResponse{QuestionnaireRef: refOf(q), RedoOfID: id}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Delete handles DELETE /api/questionnaires/{id}
func (h *QuestionnaireHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseQuestionnaireID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, err, h.logger, "delete questionnaire")
		return
	}

	if err := WriteJSON(w, http.StatusOK, DeleteResponse{OK: true, ID: id}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
