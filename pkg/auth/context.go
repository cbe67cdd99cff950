package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/forensic-testing/fts-intake/pkg/apperrors"
	"github.com/forensic-testing/fts-intake/pkg/models"
)

// Principal is the authenticated caller, resolved from the session token
// against the user store.
type Principal struct {
	ID    uuid.UUID
	Email string
	Role  string
}

// PrincipalFromUser builds a Principal from a stored account.
func PrincipalFromUser(u *models.User) *Principal {
	return &Principal{ID: u.ID, Email: u.Email, Role: u.Role}
}

// IsAdmin reports whether the principal may use the admin tools.
func (p *Principal) IsAdmin() bool {
	return p != nil && models.IsAdminRole(p.Role)
}

// IsSuperadmin reports whether the principal is the seeded superadmin.
func (p *Principal) IsSuperadmin() bool {
	return p != nil && p.Role == models.RoleSuperadmin
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal retrieves the Principal from the request context.
// Returns nil and false if the request is unauthenticated.
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok && p != nil
}

// RequirePrincipal is GetPrincipal returning an unauthorized error when absent.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return nil, apperrors.Unauthorized("unauthorized", "Authentication required")
	}
	return p, nil
}

// GetUserIDFromContext returns the authenticated user id, or "" when the
// request is unauthenticated.
func GetUserIDFromContext(ctx context.Context) string {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return ""
	}
	return p.ID.String()
}
