package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account that can sign in and own questionnaires.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // 'user', 'admin', 'superadmin'
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role constants for account roles.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// AssignableRoles are the roles an admin may grant. Superadmin is seeded, never assigned.
var AssignableRoles = []string{RoleUser, RoleAdmin}

// IsAssignableRole checks if the given role may be set through account management.
func IsAssignableRole(role string) bool {
	for _, r := range AssignableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdminRole reports whether role grants access to the admin tools.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperadmin
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserWithCounts is a user row for the admin tools table.
type UserWithCounts struct {
	User
	Drafts      int `json:"drafts"`
	Submissions int `json:"submissions"`
}
