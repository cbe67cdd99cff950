package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	sessions    SessionManager
	cookie      CookieSettings
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(authService AuthService, sessions SessionManager, cookie CookieSettings, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		sessions:    sessions,
		cookie:      cookie,
		logger:      logger,
	}
}

// RequireAuth validates the session and resolves the active user.
// Sets the Principal and token in context for downstream handlers.
// Cookie sessions are re-issued on every request so active users stay signed in.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, token, ok := m.authenticate(w, r)
		if !ok {
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		ctx = context.WithValue(ctx, TokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin is RequireAuth restricted to admin and superadmin accounts.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		p, _ := GetPrincipal(r.Context())
		if !p.IsAdmin() {
			m.logger.Warn("Non-admin attempted to access admin endpoint",
				zap.String("user_id", p.ID.String()),
				zap.String("path", r.URL.Path))
			m.forbidden(w, "Admin access required")
			return
		}
		next(w, r)
	})
}

func (m *Middleware) authenticate(w http.ResponseWriter, r *http.Request) (*Principal, string, bool) {
	claims, token, source, err := m.authService.ValidateRequest(r)
	if err != nil {
		m.unauthorized(w, "Authentication required")
		return nil, "", false
	}

	principal, err := m.authService.ResolvePrincipal(r.Context(), claims)
	if err != nil {
		m.unauthorized(w, "Authentication required")
		return nil, "", false
	}

	if source == TokenSourceCookie && m.sessions != nil {
		if refreshed, expires, err := m.sessions.Issue(principal.ID, principal.Role); err == nil {
			m.cookie.SetSessionCookie(w, refreshed, expires)
			token = refreshed
		} else {
			m.logger.Error("Failed to refresh session cookie", zap.Error(err))
		}
	}

	return principal, token, true
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// forbidden returns a 403 response with JSON error body.
func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": message,
	})
}
