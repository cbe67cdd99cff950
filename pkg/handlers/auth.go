package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/audit"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/services"
)

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the request body for POST /api/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// SessionResponse describes the signed-in user.
type SessionResponse struct {
	OK    bool   `json:"ok"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuthHandler handles sign-in, sign-out and self-service password changes.
type AuthHandler struct {
	sessionService services.SessionService
	cookie         auth.CookieSettings
	auditor        *audit.SecurityAuditor
	logger         *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessionService services.SessionService, cookie auth.CookieSettings, auditor *audit.SecurityAuditor, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessionService: sessionService,
		cookie:         cookie,
		auditor:        auditor,
		logger:         logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/auth/me", authMiddleware.RequireAuth(h.Me))
	mux.HandleFunc("POST /api/auth/change-password", authMiddleware.RequireAuth(h.ChangePassword))
}

// Login handles POST /api/auth/login
// On success the session token is set as an HttpOnly cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	session, err := h.sessionService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			h.auditor.LogLogin(r.Context(), req.Email, false, apperrors.CodeOf(err, "invalid_credentials"), clientIP(r))
		}
		WriteServiceError(w, err, h.logger, "login")
		return
	}

	ctx := auth.WithPrincipal(r.Context(), auth.PrincipalFromUser(session.User))
	h.auditor.LogLogin(ctx, session.User.Email, true, "", clientIP(r))

	h.cookie.SetSessionCookie(w, session.Token, session.ExpiresAt)
	resp := SessionResponse{OK: true, Email: session.User.Email, Role: session.User.Role}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Logout handles POST /api/auth/logout
// Clears the session cookie. Works whether or not the caller is signed in.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.ClearSessionCookie(w)
	if err := WriteJSON(w, http.StatusOK, OKResponse{OK: true}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger, "me")
		return
	}
	resp := SessionResponse{OK: true, Email: principal.Email, Role: principal.Role}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.RequirePrincipal(r.Context())
	if err != nil {
		WriteServiceError(w, err, h.logger, "change password")
		return
	}
	var req ChangePasswordRequest
	if !decodeBody(w, r, &req, false, h.logger) {
		return
	}

	err = h.sessionService.ChangePassword(r.Context(), principal, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		WriteServiceError(w, err, h.logger, "change password")
		return
	}

	h.auditor.LogPasswordChanged(r.Context(), clientIP(r))
	if err := WriteJSON(w, http.StatusOK, OKResponse{OK: true}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
