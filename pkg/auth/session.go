package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session token errors.
var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token expired")
)

// SessionManager issues and parses session tokens.
type SessionManager interface {
	// Issue mints a session token for the user. Returns the token and its expiry.
	Issue(userID uuid.UUID, role string) (string, time.Time, error)
	// Parse validates signature, expiry and token type.
	Parse(token string) (*Claims, error)
	// TTL is the lifetime of newly issued tokens.
	TTL() time.Duration
}

type jwtSessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates an HS256 SessionManager.
func NewSessionManager(secret string, ttl time.Duration) SessionManager {
	return &jwtSessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *jwtSessionManager) TTL() time.Duration {
	return m.ttl
}

func (m *jwtSessionManager) Issue(userID uuid.UUID, role string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
		Type: TokenTypeSession,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, expiresAt, nil
}

func (m *jwtSessionManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Type != TokenTypeSession || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var _ SessionManager = (*jwtSessionManager)(nil)
