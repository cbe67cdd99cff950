package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/audit"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/models"
	"github.com/forensic-testing/fts-intake/pkg/services"
)

// CreateUserRequest is the request body for creating an account.
type CreateUserRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"` // defaults to "user"
}

// CreateUserResponse carries the temporary password. It is shown once.
type CreateUserResponse struct {
	OK           bool      `json:"ok"`
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	TempPassword string    `json:"temp_password"`
}

// UpdateRoleRequest is the request body for changing a user's role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRoleResponse is returned by PATCH /api/admin/users/{id}/role.
type UpdateRoleResponse struct {
	OK   bool      `json:"ok"`
	ID   uuid.UUID `json:"id"`
	Role string    `json:"role"`
}

// AdminUsersHandler handles account administration.
type AdminUsersHandler struct {
	userService services.UserService
	auditor     *audit.SecurityAuditor
	logger      *zap.Logger
}

// NewAdminUsersHandler creates a new admin users handler.
func NewAdminUsersHandler(userService services.UserService, auditor *audit.SecurityAuditor, logger *zap.Logger) *AdminUsersHandler {
	return &AdminUsersHandler{
		userService: userService,
		auditor:     auditor,
		logger:      logger,
	}
}

// RegisterRoutes registers the admin users routes. All require an admin.
func (h *AdminUsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/admin/users", authMiddleware.RequireAdmin(h.List))
	mux.HandleFunc("POST /api/admin/users", authMiddleware.RequireAdmin(h.Create))
	mux.HandleFunc("PATCH /api/admin/users/{id}/role", authMiddleware.RequireAdmin(h.UpdateRole))
	mux.HandleFunc("DELETE /api/admin/users/{id}", authMiddleware.RequireAdmin(h.Delete))
}

// List handles GET /api/admin/users
func (h *AdminUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger, "list users")
		return
	}
	if users == nil {
		users = []*models.UserWithCounts{}
	}
	if err := WriteJSON(w, http.StatusOK, users); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Create handles POST /api/admin/users
func (h *AdminUsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		if err := ErrorResponse(w, http.StatusUnprocessableEntity, "missing_email", "Email is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	requester, _ := auth.GetPrincipal(r.Context())
	user, tempPassword, err := h.userService.Create(r.Context(), requester, req.Email, req.Role)
	if err != nil {
		WriteServiceError(w, err, h.logger, "create user")
		return
	}

	h.auditor.LogAccountChange(r.Context(), audit.EventAccountCreated, map[string]string{
		"target_user_id": user.ID.String(),
		"role":           user.Role,
	}, clientIP(r))

	resp := CreateUserResponse{
		OK:           true,
		ID:           user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TempPassword: tempPassword,
	}
	if err := WriteJSON(w, http.StatusCreated, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// UpdateRole handles PATCH /api/admin/users/{id}/role
func (h *AdminUsersHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	requester, _ := auth.GetPrincipal(r.Context())
	user, err := h.userService.UpdateRole(r.Context(), requester, id, req.Role)
	if err != nil {
		WriteServiceError(w, err, h.logger, "update user role")
		return
	}

	h.auditor.LogAccountChange(r.Context(), audit.EventAccountRoleChange, map[string]string{
		"target_user_id": user.ID.String(),
		"role":           user.Role,
	}, clientIP(r))

	if err := WriteJSON(w, http.StatusOK, UpdateRoleResponse{OK: true, ID: user.ID, Role: user.Role}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Delete handles DELETE /api/admin/users/{id}
func (h *AdminUsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	requester, _ := auth.GetPrincipal(r.Context())
	if err := h.userService.Delete(r.Context(), requester, id); err != nil {
		WriteServiceError(w, err, h.logger, "delete user")
		return
	}

	h.auditor.LogAccountChange(r.Context(), audit.EventAccountDeleted, map[string]string{
		"target_user_id": id.String(),
	}, clientIP(r))

	if err := WriteJSON(w, http.StatusOK, OKResponse{OK: true}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
