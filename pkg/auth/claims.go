// Package auth issues and validates fts-intake session tokens.
// Sessions are HS256 JWTs carried in an HttpOnly cookie or a Bearer header.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// PrincipalKey is the context key for the authenticated Principal.
	PrincipalKey contextKey = "principal"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// TokenTypeSession is the only token type accepted by the middleware.
const TokenTypeSession = "session"

// Claims is the session token payload. Subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Type string `json:"type"`
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
